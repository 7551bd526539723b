package authz

import "errors"

// Code identifies an expected authorization or validation outcome. Codes
// are stable: calling layers map them to their own surface, for example an
// HTTP status, instead of parsing message text.
type Code string

const (
	// CodeValidationFailed means the input was structurally malformed.
	// It is returned before any I/O happens.
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// CodeInvalidPermissionCombination means the requested flags grant a
	// capability stronger than view without view itself.
	CodeInvalidPermissionCombination Code = "INVALID_PERMISSION_COMBINATION"

	// CodeSelfPermissionDenied means the actor targeted their own
	// permissions.
	CodeSelfPermissionDenied Code = "SELF_PERMISSION_DENIED"

	// CodePageNotAccessible covers both "page does not exist" and "actor
	// may not share it". The two are indistinguishable on purpose so
	// that error responses cannot be used to probe for page existence.
	CodePageNotAccessible Code = "PAGE_NOT_ACCESSIBLE"

	// CodeUserNotFound means the target user does not exist.
	CodeUserNotFound Code = "USER_NOT_FOUND"

	// CodeInsufficientPermission means the acting context itself lacks
	// the capability: a missing scope or a resource binding that does
	// not cover the target.
	CodeInsufficientPermission Code = "INSUFFICIENT_PERMISSION"
)

// Error is an expected outcome with a machine-readable code. Infrastructure
// failures are returned as plain wrapped errors, not as *Error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the Code carried by err, or "" when err is not an
// authorization outcome.
func CodeOf(err error) Code {
	var authzErr *Error
	if errors.As(err, &authzErr) {
		return authzErr.Code
	}
	return ""
}
