// Package generation turns a captured frame into a past-life narrative,
// either by calling a chat API directly or by delegating to an external
// process that writes the finished record itself.
package generation

import (
	"context"
	"errors"
	"fmt"
)

// Kind sentinels, matched with errors.Is against any error returned by a Generator.
var (
	ErrUnavailable     = errors.New("generation backend unavailable")
	ErrFailed          = errors.New("generation failed")
	ErrIdentifierParse = errors.New("confirmed record identifier unparseable")
)

// Error is the failure type returned by every Generator. Kind is one of the
// sentinels above and Err the underlying cause.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ResultKind distinguishes who is responsible for persisting the result.
type ResultKind int

const (
	// ResultNarrative means the caller must write Narrative and EditedImage
	// to its own record.
	ResultNarrative ResultKind = iota + 1
	// ResultConfirmed means the backend already wrote a record with RecordID.
	ResultConfirmed
)

func (k ResultKind) String() string {
	switch k {
	case ResultNarrative:
		return "narrative"
	case ResultConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Request carries everything a backend may need for one capture.
type Request struct {
	RawImage   []byte
	Profession string
	Age        int
	// StorePath is the datastore file, for backends that write the record themselves.
	StorePath string
}

// Result is the uniform outcome of a successful Generate call.
type Result struct {
	Kind        ResultKind
	Narrative   string
	EditedImage []byte
	RecordID    int64
}

// Generator produces the generated content for a capture. Implementations
// never retry; a failed call is reported once.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
