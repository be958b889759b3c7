package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/previouslives/internal/engine"
)

type fakeEngine struct {
	reply    string
	err      error
	gotModel string
	gotMsgs  []engine.Message
}

func (f *fakeEngine) Chat(_ context.Context, model string, msgs []engine.Message) (string, error) {
	f.gotModel = model
	f.gotMsgs = msgs
	return f.reply, f.err
}

func (f *fakeEngine) IsRunning(context.Context) bool { return true }

type fakeEditor struct {
	out []byte
	err error
}

func (f *fakeEditor) Edit(context.Context, []byte, string, int) ([]byte, error) {
	return f.out, f.err
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("", "Viking", 42)
	want := "Gender: male\nProfession: Viking\nAge at death: 42\nDescribe what your past life was like, and finish with an EPIC death scene."
	if got != want {
		t.Errorf("BuildPrompt =\n%q\nwant\n%q", got, want)
	}
	if !strings.HasPrefix(BuildPrompt("female", "Pilot", 30), "Gender: female\n") {
		t.Error("gender override not applied")
	}
}

func TestAPIGenerator_Narrative(t *testing.T) {
	eng := &fakeEngine{reply: "  A brief epic life...\n"}
	g := &APIGenerator{Engine: eng}

	res, err := g.Generate(t.Context(), Request{Profession: "Viking", Age: 42})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Kind != ResultNarrative {
		t.Errorf("Kind = %v, want narrative", res.Kind)
	}
	if res.Narrative != "A brief epic life..." {
		t.Errorf("Narrative = %q", res.Narrative)
	}
	if len(res.EditedImage) != 0 {
		t.Error("EditedImage set without an editor")
	}
	if eng.gotModel != DefaultModel {
		t.Errorf("model = %q, want %q", eng.gotModel, DefaultModel)
	}
	if len(eng.gotMsgs) != 1 || eng.gotMsgs[0].Role != "user" || eng.gotMsgs[0].Content != BuildPrompt("male", "Viking", 42) {
		t.Errorf("messages = %+v", eng.gotMsgs)
	}
}

func TestAPIGenerator_WithEditor(t *testing.T) {
	g := &APIGenerator{
		Engine: &fakeEngine{reply: "story"},
		Editor: &fakeEditor{out: []byte("edited")},
	}
	res, err := g.Generate(t.Context(), Request{RawImage: []byte("raw"), Profession: "Pilot", Age: 20})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(res.EditedImage) != "edited" {
		t.Errorf("EditedImage = %q", res.EditedImage)
	}
}

func TestAPIGenerator_Errors(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	down.Close()

	tests := []struct {
		name string
		gen  *APIGenerator
		want error
	}{
		{
			name: "unreachable engine",
			gen:  &APIGenerator{Engine: engine.NewOpenAIEngine("k", down.URL)},
			want: ErrUnavailable,
		},
		{
			name: "error status",
			gen: &APIGenerator{Engine: engine.NewOpenAIEngine("k", serverWith(t, http.StatusInternalServerError, "boom"))},
			want: ErrFailed,
		},
		{
			name: "undecodable body",
			gen:  &APIGenerator{Engine: engine.NewOpenAIEngine("k", serverWith(t, http.StatusOK, "not json"))},
			want: ErrFailed,
		},
		{
			name: "empty completion",
			gen:  &APIGenerator{Engine: &fakeEngine{reply: "   "}},
			want: ErrFailed,
		},
		{
			name: "editor failure",
			gen:  &APIGenerator{Engine: &fakeEngine{reply: "ok"}, Editor: &fakeEditor{err: errors.New("bad request")}},
			want: ErrFailed,
		},
		{
			name: "editor deadline",
			gen:  &APIGenerator{Engine: &fakeEngine{reply: "ok"}, Editor: &fakeEditor{err: context.DeadlineExceeded}},
			want: ErrUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gen.Generate(t.Context(), Request{Profession: "Homeless", Age: 50})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var gerr *Error
			if !errors.As(err, &gerr) {
				t.Fatalf("error %T is not *Error", err)
			}
		})
	}
}

func serverWith(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   int64
		err    error
	}{
		{"plain", "Saved capture #17\n", 17, nil},
		{"noise around", "=== Stability RAW JSON ===\n{}\nSaved capture #5\ndone\n", 5, nil},
		{"crlf", "Saved capture #9\r\n", 9, nil},
		{"first line wins", "Saved capture #3\nSaved capture #4\n", 3, nil},
		{"no marker", "all good\n", 0, ErrFailed},
		{"empty", "", 0, ErrFailed},
		{"no hash", "Saved capture 12\n", 0, ErrIdentifierParse},
		{"not a number", "Saved capture #abc\n", 0, ErrIdentifierParse},
		{"zero", "Saved capture #0\n", 0, ErrIdentifierParse},
		{"negative", "Saved capture #-2\n", 0, ErrIdentifierParse},
		{"trailing text", "Saved capture #12 ok\n", 0, ErrIdentifierParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfirmation(tt.stdout)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfirmation: %v", err)
			}
			if got != tt.want {
				t.Errorf("id = %d, want %d", got, tt.want)
			}
		})
	}
}

// writeScript writes a shell script to a temp dir and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "img2img.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessGenerator_Confirmed(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	script := writeScript(t, fmt.Sprintf(`echo "$@" > %q
echo "Saved capture #42"
`, out))

	g := &ProcessGenerator{Interpreter: "/bin/sh", Script: script}
	res, err := g.Generate(t.Context(), Request{
		RawImage:   []byte("png"),
		Profession: "Opera Singer",
		Age:        33,
		StorePath:  "/data/captures.db",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Kind != ResultConfirmed || res.RecordID != 42 {
		t.Errorf("result = %+v, want confirmed 42", res)
	}

	args, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got := string(args)
	for _, want := range []string{"--image ", "--profession Opera Singer", "--age 33", "--db /data/captures.db"} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestProcessGenerator_ImageFile(t *testing.T) {
	script := writeScript(t, `
while [ $# -gt 0 ]; do
  if [ "$1" = "--image" ]; then img="$2"; fi
  shift
done
if [ "$(cat "$img")" = "frame-bytes" ]; then echo "Saved capture #7"; else echo "wrong image"; fi
`)
	g := &ProcessGenerator{Interpreter: "/bin/sh", Script: script}
	res, err := g.Generate(t.Context(), Request{RawImage: []byte("frame-bytes"), Profession: "Pilot", Age: 20})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.RecordID != 7 {
		t.Errorf("RecordID = %d, want 7", res.RecordID)
	}
}

func TestProcessGenerator_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"stderr with success exit", "echo oops >&2\necho 'Saved capture #3'\n", ErrFailed},
		{"stderr only", "echo 'ERROR: image not found' >&2\nexit 1\n", ErrFailed},
		{"no marker", "echo finished\n", ErrFailed},
		{"bad id", "echo 'Saved capture #x'\n", ErrIdentifierParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &ProcessGenerator{Interpreter: "/bin/sh", Script: writeScript(t, tt.body)}
			_, err := g.Generate(t.Context(), Request{RawImage: []byte("x"), Profession: "Viking", Age: 40})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProcessGenerator_NonZeroExitIgnored(t *testing.T) {
	g := &ProcessGenerator{Interpreter: "/bin/sh", Script: writeScript(t, "echo 'Saved capture #11'\nexit 3\n")}
	res, err := g.Generate(t.Context(), Request{RawImage: []byte("x"), Profession: "Viking", Age: 40})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.RecordID != 11 {
		t.Errorf("RecordID = %d, want 11", res.RecordID)
	}
}

func TestProcessGenerator_MissingInterpreter(t *testing.T) {
	g := &ProcessGenerator{Interpreter: filepath.Join(t.TempDir(), "no-such-python"), Script: "img2img.py"}
	_, err := g.Generate(t.Context(), Request{RawImage: []byte("x"), Profession: "Viking", Age: 40})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestProcessGenerator_Timeout(t *testing.T) {
	g := &ProcessGenerator{
		Interpreter: "/bin/sh",
		Script:      writeScript(t, "sleep 5\necho 'Saved capture #1'\n"),
		Timeout:     100 * time.Millisecond,
	}
	_, err := g.Generate(t.Context(), Request{RawImage: []byte("x"), Profession: "Viking", Age: 40})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestNew(t *testing.T) {
	g, err := New(Config{Backend: BackendAPI, StabilityAPIKey: "sk"}, nil)
	if err != nil {
		t.Fatalf("New(api): %v", err)
	}
	api, ok := g.(*APIGenerator)
	if !ok {
		t.Fatalf("New(api) = %T", g)
	}
	if api.Editor == nil {
		t.Error("editor not configured despite stability key")
	}

	g, err = New(Config{Backend: BackendProcess, Interpreter: DefaultInterpreter, Script: "img2img.py"}, nil)
	if err != nil {
		t.Fatalf("New(process): %v", err)
	}
	if _, ok := g.(*ProcessGenerator); !ok {
		t.Fatalf("New(process) = %T", g)
	}

	if _, err := New(Config{Backend: BackendProcess}, nil); err == nil {
		t.Error("New(process) without script should fail")
	}
	if _, err := New(Config{Backend: "both"}, nil); err == nil {
		t.Error("New with unknown backend should fail")
	}
}
