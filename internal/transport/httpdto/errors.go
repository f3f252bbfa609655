package httpdto

import (
	"errors"
	"fmt"

	cv_errors "cloudvault/pkg/errors"
)

// Error codes carried in Response.Code.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	code  string
	kinds []error
}{
	{CodeInvalidRequest, []error{cv_errors.ErrInvalidInput, cv_errors.ErrKeyImport}},
	{CodeUnauthorized, []error{cv_errors.ErrUnauthorized}},
	{CodeForbidden, []error{cv_errors.ErrForbidden}},
	{CodeNotFound, []error{cv_errors.ErrNotFound}},
	{CodeConflict, []error{cv_errors.ErrConflict, cv_errors.ErrAlreadyExists}},
	{CodeRateLimited, []error{cv_errors.ErrRateLimited}},
}

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	for _, entry := range errorCodes {
		for _, kind := range entry.kinds {
			if errors.Is(err, kind) {
				return entry.code
			}
		}
	}
	return CodeInternal
}

// ErrorFromCode turns an error response back into an error matching the
// sentinel its code was derived from.
func ErrorFromCode(code, message string) error {
	for _, entry := range errorCodes {
		if entry.code != code {
			continue
		}
		kind := entry.kinds[0]
		if message == "" || message == kind.Error() {
			return kind
		}
		return fmt.Errorf("%w: %s", kind, message)
	}
	if message == "" {
		message = "request failed"
	}
	return errors.New(message)
}
