package storage

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

// TestInsertAndFetch verifies a fresh capture round-trips with empty generated fields.
func TestInsertAndFetch(t *testing.T) {
	s := openTestStore(t)
	raw := []byte("\x89PNG\r\n\x1a\nbody")

	id, err := s.Insert(t.Context(), 1700000000, raw)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.FetchByID(t.Context(), id)
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if got.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", got.Timestamp)
	}
	if !bytes.Equal(got.RawImage, raw) {
		t.Errorf("RawImage = %q, want %q", got.RawImage, raw)
	}
	if got.Description != "" {
		t.Errorf("Description = %q, want empty", got.Description)
	}
	if len(got.EditedImage) != 0 {
		t.Errorf("EditedImage has %d bytes, want 0", len(got.EditedImage))
	}
	if got.Finalized() {
		t.Error("Finalized() = true for a fresh capture")
	}
}

// TestConcreteScenario walks the insert, narrative update, fetch sequence.
func TestConcreteScenario(t *testing.T) {
	s := openTestStore(t)
	raw := []byte("\x89PNG...")

	id, err := s.Insert(t.Context(), 1700000000, raw)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}

	desc := "A brief epic life..."
	if err := s.Update(t.Context(), 1, RecordUpdate{Description: &desc}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.FetchByID(t.Context(), 1)
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if got.ID != 1 || got.Timestamp != 1700000000 || !bytes.Equal(got.RawImage, raw) ||
		got.Description != desc || len(got.EditedImage) != 0 {
		t.Errorf("got %+v", got)
	}
}

// TestUpdatePartial verifies only supplied fields change.
func TestUpdatePartial(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Insert(t.Context(), 10, []byte("raw"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	desc := "X"
	if err := s.Update(t.Context(), id, RecordUpdate{Description: &desc}); err != nil {
		t.Fatalf("Update description: %v", err)
	}
	got, _ := s.FetchByID(t.Context(), id)
	if got.Description != "X" || string(got.RawImage) != "raw" || len(got.EditedImage) != 0 {
		t.Errorf("after description update: %+v", got)
	}

	if err := s.Update(t.Context(), id, RecordUpdate{EditedImage: []byte("edited")}); err != nil {
		t.Fatalf("Update edited image: %v", err)
	}
	got, _ = s.FetchByID(t.Context(), id)
	if got.Description != "X" {
		t.Errorf("Description = %q, want it preserved", got.Description)
	}
	if string(got.EditedImage) != "edited" {
		t.Errorf("EditedImage = %q, want %q", got.EditedImage, "edited")
	}
	if got.Timestamp != 10 {
		t.Errorf("Timestamp = %d, want 10", got.Timestamp)
	}
}

// TestUpdateOverwrites pins that Update replaces supplied fields; keeping
// finalization to a single write is the caller's job.
func TestUpdateOverwrites(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Insert(t.Context(), 10, []byte("raw"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for _, desc := range []string{"first", "second"} {
		if err := s.Update(t.Context(), id, RecordUpdate{Description: &desc}); err != nil {
			t.Fatalf("Update(%q): %v", desc, err)
		}
	}
	got, _ := s.FetchByID(t.Context(), id)
	if got.Description != "second" {
		t.Errorf("Description = %q, want %q", got.Description, "second")
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := openTestStore(t)
	desc := "nobody"

	if err := s.Update(t.Context(), 99, RecordUpdate{Description: &desc}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update error = %v, want ErrNotFound", err)
	}
	if err := s.Update(t.Context(), 99, RecordUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty Update error = %v, want ErrNotFound", err)
	}
}

func TestFetchNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.FetchByID(t.Context(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestInsertIDsIncrease verifies sequential inserts get distinct, strictly increasing IDs.
func TestInsertIDsIncrease(t *testing.T) {
	s := openTestStore(t)

	var prev int64
	for i := 0; i < 50; i++ {
		id, err := s.Insert(t.Context(), int64(i), []byte{byte(i)})
		if err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

// TestInsertConcurrentUnique verifies concurrent inserts never share an ID.
func TestInsertConcurrentUnique(t *testing.T) {
	s := openTestStore(t)

	const n = 40
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Insert(t.Context(), 1, []byte("x"))
			if err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d ids, want %d", len(seen), n)
	}
}

func TestListAndCount(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Insert(t.Context(), int64(100+i), []byte("abcd")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	desc := "story"
	if err := s.Update(t.Context(), 2, RecordUpdate{Description: &desc, EditedImage: []byte("e")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := s.Count(t.Context())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	list, err := s.List(t.Context(), 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d items, want 2", len(list))
	}
	if list[0].ID != 3 || list[1].ID != 2 {
		t.Errorf("List order = [%d %d], want [3 2]", list[0].ID, list[1].ID)
	}
	if !list[1].HasEditedImage || list[1].Description != "story" {
		t.Errorf("summary for 2 = %+v", list[1])
	}
	if list[0].HasEditedImage || list[0].RawImageSize != 4 {
		t.Errorf("summary for 3 = %+v", list[0])
	}

	rest, err := s.List(t.Context(), 10, 2)
	if err != nil {
		t.Fatalf("List offset: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != 1 {
		t.Errorf("List offset 2 = %+v", rest)
	}
}
