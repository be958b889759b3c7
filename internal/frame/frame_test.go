package frame

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func jpegBytes(body string) []byte {
	b := append([]byte{}, jpegSOI...)
	b = append(b, body...)
	return append(b, jpegEOI...)
}

func TestSlot_Empty(t *testing.T) {
	s := NewSlot()
	if _, ok := s.Latest(); ok {
		t.Error("Latest() on empty slot returned ok")
	}
}

func TestSlot_PutLatest(t *testing.T) {
	s := NewSlot()
	s.Put([]byte("one"))
	seq := s.Put([]byte("two"))

	f, ok := s.Latest()
	if !ok {
		t.Fatal("Latest() returned !ok after Put")
	}
	if string(f.Data) != "two" || f.Seq != seq || seq != 2 {
		t.Errorf("Latest() = %q seq %d, want two seq 2", f.Data, f.Seq)
	}
	if f.At.IsZero() {
		t.Error("frame timestamp not set")
	}
}

func TestSlot_Concurrent(t *testing.T) {
	s := NewSlot()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Put([]byte{byte(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if f, ok := s.Latest(); ok && len(f.Data) != 1 {
					t.Errorf("torn frame %v", f.Data)
				}
			}
		}()
	}
	wg.Wait()

	f, _ := s.Latest()
	if f.Seq != 800 {
		t.Errorf("Seq = %d, want 800", f.Seq)
	}
}

func TestPump(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("junk")
	stream.Write(jpegBytes("first"))
	stream.Write(jpegBytes("second"))
	stream.Write(jpegSOI)
	stream.WriteString("truncated")

	s := NewSlot()
	n, err := Pump(&stream, s)
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if n != 2 {
		t.Errorf("published %d frames, want 2", n)
	}
	f, _ := s.Latest()
	if !bytes.Equal(f.Data, jpegBytes("second")) {
		t.Errorf("latest = %q", f.Data)
	}
}

// TestPump_SmallReads feeds the stream one byte at a time so markers are
// split across reads.
func TestPump_SmallReads(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 5; i++ {
		stream.Write(jpegBytes(strings.Repeat("x", i+1)))
	}

	s := NewSlot()
	n, err := Pump(&oneByteReader{r: &stream}, s)
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if n != 5 {
		t.Errorf("published %d frames, want 5", n)
	}
}

type oneByteReader struct{ r *bytes.Buffer }

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestFFmpegFeed_Args(t *testing.T) {
	f := &FFmpegFeed{InputFormat: "v4l2", Device: "/dev/video0", FPS: 5}
	got := strings.Join(f.Args(), " ")
	want := "-hide_banner -loglevel error -f v4l2 -i /dev/video0 -vf fps=5 -f image2pipe -vcodec mjpeg -"
	if got != want {
		t.Errorf("Args() = %q\nwant %q", got, want)
	}
}

func TestFFmpegFeed_NoDevice(t *testing.T) {
	if err := (&FFmpegFeed{}).Run(t.Context(), NewSlot()); err == nil {
		t.Error("Run without device should fail")
	}
}

func TestFFmpegFeed_Stub(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	frames := filepath.Join(dir, "frames.mjpeg")
	if err := os.WriteFile(frames, append(jpegBytes("a"), jpegBytes("b")...), 0o644); err != nil {
		t.Fatal(err)
	}
	stub := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\ncat "+frames+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := NewSlot()
	f := &FFmpegFeed{Binary: stub, Device: "test"}
	if err := f.Run(t.Context(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := s.Latest()
	if !ok || !bytes.Equal(got.Data, jpegBytes("b")) || got.Seq != 2 {
		t.Errorf("latest = %q seq %d", got.Data, got.Seq)
	}
}

func TestDirFeed(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jpg")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewSlot()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- (&DirFeed{Path: dir, Interval: 10 * time.Millisecond}).Run(ctx, s)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := s.Latest(); ok {
			if string(f.Data) != "new" {
				t.Errorf("latest = %q, want newest file", f.Data)
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if f, _ := s.Latest(); f.Seq != 1 {
		t.Errorf("unchanged file republished: seq %d", f.Seq)
	}
}
