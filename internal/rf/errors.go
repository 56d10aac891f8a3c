package rf

import "fmt"

// ErrorKind partitions frame decode failures per spec §4.1: a bad CRC is
// never upgraded to anything but ErrBadCRC, even if the payload also fails
// a field-range check.
type ErrorKind int

const (
	ErrBadCRC ErrorKind = iota
	ErrTruncatedFrame
	ErrUnknownType
	ErrOutOfRangeField
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadCRC:
		return "BadCrc"
	case ErrTruncatedFrame:
		return "TruncatedFrame"
	case ErrUnknownType:
		return "UnknownType"
	case ErrOutOfRangeField:
		return "OutOfRangeField"
	default:
		return "Unknown"
	}
}

// FrameError reports why Decode rejected a buffer.
type FrameError struct {
	Kind   ErrorKind
	Detail string
}

func (e *FrameError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newFrameError(kind ErrorKind, detail string) *FrameError {
	return &FrameError{Kind: kind, Detail: detail}
}
