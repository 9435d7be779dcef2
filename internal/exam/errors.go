package exam

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindAcquisition    Kind = "AcquisitionFailure"
	KindUnreadable     Kind = "DocumentUnreadable"
	KindEnhancement    Kind = "EnhancementUnavailable"
	KindInvalidRequest Kind = "InvalidRequest"
	KindUnknown        Kind = "Unknown"
)

// Error is a classified failure tied to a document reference.
type Error struct {
	Kind Kind
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Ref != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Ref, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Ref != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Ref)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error.
func Errorf(kind Kind, ref string, format string, args ...any) error {
	return &Error{Kind: kind, Ref: ref, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Ref: ref, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
