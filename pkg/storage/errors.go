package storage

// Error represents a domain error from a storage backend.
//
// These are result codes more than errors: the closed Code enumeration is
// the sole channel by which a backend communicates failure, and the
// protocol engine owns the mapping from these codes to HTTP status codes.
// Backends must never surface raw OS or transport errors past this type.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the namespace path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode is the closed enumeration of backend-reported outcomes.
//
// The protocol engine's status mapping is total over these values; adding
// a code here requires extending that mapping.
type ErrorCode int

const (
	// ErrNotImplemented indicates the backend does not provide this
	// optional capability (maps to 501)
	ErrNotImplemented ErrorCode = iota

	// ErrGeneralFailure indicates an unspecified backend failure (500)
	ErrGeneralFailure

	// ErrExists indicates a create hit an existing node (405 or 412,
	// method dependent; RFC 4918 makes MKCOL-on-existing a 405)
	ErrExists

	// ErrNotFound indicates the node does not exist (404, or 409 when a
	// missing parent is implied)
	ErrNotFound

	// ErrForbidden indicates the operation is not allowed (403)
	ErrForbidden

	// ErrInsufficientStorage indicates the backend is out of space (507)
	ErrInsufficientStorage

	// ErrLoopDetected indicates a symbolic link loop (508)
	ErrLoopDetected

	// ErrPathTooLong indicates the path exceeds backend limits (414)
	ErrPathTooLong

	// ErrTooLarge indicates the entity being stored is too large (413)
	ErrTooLarge

	// ErrIsRemote indicates the operation would cross a backend or
	// device boundary, e.g. a rename across mounts (502)
	ErrIsRemote
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotImplemented:
		return "not implemented"
	case ErrGeneralFailure:
		return "general failure"
	case ErrExists:
		return "already exists"
	case ErrNotFound:
		return "not found"
	case ErrForbidden:
		return "forbidden"
	case ErrInsufficientStorage:
		return "insufficient storage"
	case ErrLoopDetected:
		return "loop detected"
	case ErrPathTooLong:
		return "path too long"
	case ErrTooLarge:
		return "too large"
	case ErrIsRemote:
		return "is remote"
	default:
		return "unknown"
	}
}

// NewError builds a storage error with the code's default message.
func NewError(code ErrorCode, path string) *Error {
	return &Error{Code: code, Message: code.String(), Path: path}
}

// CodeOf extracts the error code from err. Errors that are not storage
// errors (including context cancellation) report ErrGeneralFailure: by
// the backend contract they should not occur, and the engine must still
// produce a valid status for them.
func CodeOf(err error) ErrorCode {
	if serr, ok := err.(*Error); ok {
		return serr.Code
	}
	return ErrGeneralFailure
}

// IsCode reports whether err is a storage error with the given code.
func IsCode(err error, code ErrorCode) bool {
	serr, ok := err.(*Error)
	return ok && serr.Code == code
}
