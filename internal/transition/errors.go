package transition

import (
	"errors"
	"fmt"
)

// Kind classifies a build failure.
type Kind int

const (
	KindInvalidTempo Kind = iota + 1
	KindDegenerateSection
	KindSectionTooShort
	KindStemMismatch
	KindSampleRateMismatch
	KindChannelMismatch
	KindInvalidSpec
)

func (k Kind) String() string {
	switch k {
	case KindInvalidTempo:
		return "InvalidTempo"
	case KindDegenerateSection:
		return "DegenerateSection"
	case KindSectionTooShort:
		return "SectionTooShort"
	case KindStemMismatch:
		return "StemMismatch"
	case KindSampleRateMismatch:
		return "SampleRateMismatch"
	case KindChannelMismatch:
		return "ChannelMismatch"
	case KindInvalidSpec:
		return "InvalidSpec"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrInvalidTempo       = errors.New("invalid tempo")
	ErrDegenerateSection  = errors.New("degenerate section")
	ErrSectionTooShort    = errors.New("section too short")
	ErrStemMismatch       = errors.New("stem mismatch")
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	ErrChannelMismatch    = errors.New("channel mismatch")
	ErrInvalidSpec        = errors.New("invalid transition spec")
)

var sentinels = map[Kind]error{
	KindInvalidTempo:       ErrInvalidTempo,
	KindDegenerateSection:  ErrDegenerateSection,
	KindSectionTooShort:    ErrSectionTooShort,
	KindStemMismatch:       ErrStemMismatch,
	KindSampleRateMismatch: ErrSampleRateMismatch,
	KindChannelMismatch:    ErrChannelMismatch,
	KindInvalidSpec:        ErrInvalidSpec,
}

// Error is a validation failure raised while resolving or building a
// transition. Param names the offending input so callers can tell the user
// what to change.
type Error struct {
	Kind  Kind
	Stage State
	Param string
	Msg   string
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Param, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches the Kind's sentinel and other *Error values of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return sentinels[e.Kind] == target
}

func newError(kind Kind, param, format string, args ...any) *Error {
	return &Error{Kind: kind, Param: param, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or 0 when err is not a transition error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
