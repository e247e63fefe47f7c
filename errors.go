package llmk

import (
	"errors"
	"fmt"
)

// ErrorKind is one of the small closed set of failure categories the core
// surfaces to the session driver. The numeric values are not stable ABI,
// they only need to be distinct within this process.
type ErrorKind uint8

const (
	KindInvalidArgument ErrorKind = iota
	KindIoShort
	KindCorrupt
	KindUnsupportedFormat
	KindUnsupportedType
	KindMissingHyperparam
	KindMissingTensor
	KindShapeMismatch
	KindBufferTooSmall
	KindOutOfMemory
	KindFirmwareService
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIoShort:
		return "IoShort"
	case KindCorrupt:
		return "Corrupt"
	case KindUnsupportedFormat:
		return "UnsupportedFormat"
	case KindUnsupportedType:
		return "UnsupportedType"
	case KindMissingHyperparam:
		return "MissingHyperparam"
	case KindMissingTensor:
		return "MissingTensor"
	case KindShapeMismatch:
		return "ShapeMismatch"
	case KindBufferTooSmall:
		return "BufferTooSmall"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindFirmwareService:
		return "FirmwareService"
	default:
		return "Unknown"
	}
}

// Error is the core's error type. It always carries a Kind so the session
// driver can report "stage, offset, kind" without parsing strings, and it
// wraps an underlying cause so errors.Is/errors.As keep working through the
// loader/materializer call chain.
type Error struct {
	Kind   ErrorKind
	Stage  string
	Offset int64 // -1 when not applicable
	Cause  error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s at offset %d: %v", e.Stage, e.Kind, e.Offset, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ErrCorrupt) style sentinel checks against the Kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

func newErr(kind ErrorKind, stage string, offset int64, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Offset: offset, Cause: cause}
}

// Sentinel errors usable with errors.Is(err, llmk.ErrCorrupt) without caring
// about stage/offset.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Offset: -1, Cause: errors.New("invalid argument")}
	ErrIoShort           = &Error{Kind: KindIoShort, Offset: -1, Cause: errors.New("short read")}
	ErrCorrupt           = &Error{Kind: KindCorrupt, Offset: -1, Cause: errors.New("corrupt data")}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat, Offset: -1, Cause: errors.New("unsupported format")}
	ErrUnsupportedType   = &Error{Kind: KindUnsupportedType, Offset: -1, Cause: errors.New("unsupported type")}
	ErrMissingHyperparam = &Error{Kind: KindMissingHyperparam, Offset: -1, Cause: errors.New("missing hyperparameter")}
	ErrMissingTensor     = &Error{Kind: KindMissingTensor, Offset: -1, Cause: errors.New("missing tensor")}
	ErrShapeMismatch     = &Error{Kind: KindShapeMismatch, Offset: -1, Cause: errors.New("shape mismatch")}
	ErrBufferTooSmall    = &Error{Kind: KindBufferTooSmall, Offset: -1, Cause: errors.New("buffer too small")}
	ErrOutOfMemory       = &Error{Kind: KindOutOfMemory, Offset: -1, Cause: errors.New("out of memory")}
	ErrFirmwareService   = &Error{Kind: KindFirmwareService, Offset: -1, Cause: errors.New("firmware service unavailable")}
)
