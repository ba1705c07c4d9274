package predictor

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindArtifactUnavailable Kind = "ArtifactUnavailable"
	KindDecodeFailure       Kind = "DecodeFailure"
	KindShapeMismatch       Kind = "ShapeMismatch"
	KindInferenceFailure    Kind = "InferenceFailure"
)

// Error is returned by every Predictor operation. Message is safe to show to
// end users; Err carries the internal cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrArtifactUnavailable = &Error{Kind: KindArtifactUnavailable}
	ErrDecodeFailure       = &Error{Kind: KindDecodeFailure}
	ErrShapeMismatch       = &Error{Kind: KindShapeMismatch}
	ErrInferenceFailure    = &Error{Kind: KindInferenceFailure}

	ErrAlreadyLoaded = errors.New("predictor has already been loaded")
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return "", false
}
