package identity

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Error kinds. Every business rejection produced by this package wraps exactly
// one of these so callers can branch with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrLockedOut       = errors.New("locked out")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrBadRequest      = errors.New("bad request")
	ErrInternal        = errors.New("internal error")
)

// Text codes attached to errors through oops.Code.
const (
	CodeValidation        = "IDENTITY_VALIDATION"
	CodeUserExists        = "IDENTITY_USER_EXISTS"
	CodeLoginExists       = "IDENTITY_EXTERNAL_LOGIN_EXISTS"
	CodeInvalidCredential = "IDENTITY_INVALID_CREDENTIALS"
	CodeAccountLocked     = "IDENTITY_ACCOUNT_LOCKED"
	CodeTokenMissing      = "IDENTITY_TOKEN_MISSING"
	CodeTokenInvalid      = "IDENTITY_TOKEN_INVALID"
	CodeForbiddenRole     = "IDENTITY_FORBIDDEN_ROLE"
	CodeForbiddenPolicy   = "IDENTITY_FORBIDDEN_POLICY"
	CodeNotFound          = "IDENTITY_NOT_FOUND"
	CodeUserToken         = "IDENTITY_USER_TOKEN_INVALID"
	CodeStorage           = "IDENTITY_STORAGE"
	CodeInternal          = "IDENTITY_INTERNAL"
)

var kinds = []error{
	ErrValidation,
	ErrConflict,
	ErrUnauthenticated,
	ErrLockedOut,
	ErrForbidden,
	ErrNotFound,
	ErrBadRequest,
}

// NewError builds an error of the given kind carrying a public message and
// optional key/value context.
func NewError(kind error, code, message string, kv ...any) error {
	return oops.Code(code).
		With(kv...).
		Public(message).
		Wrapf(kind, "%s", message)
}

// Internal wraps a lower layer fault. The original error stays reachable
// through errors.Is/As but the kind reported is always ErrInternal.
func Internal(err error, operation string, kv ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(CodeStorage).
		With("operation", operation).
		With(kv...).
		Public(MsgInternal).
		Wrap(errors.Join(ErrInternal, err))
}

// KindOf returns the sentinel kind wrapped by err. Unknown errors are
// reported as ErrInternal.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// IsKind reports whether err is a business rejection (anything but internal).
func IsKind(err error) bool {
	return err != nil && KindOf(err) != ErrInternal
}

// PublicMessage returns the client safe message attached to err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	return oops.GetPublic(err, MsgInternal)
}

// ErrorCode returns the text code attached to err, if any.
func ErrorCode(err error) string {
	if o, ok := oops.AsOops(err); ok {
		if code := fmt.Sprint(o.Code()); code != "" && code != "<nil>" {
			return code
		}
	}
	return CodeInternal
}

// HTTPStatus maps an error kind to the status code surfaced at the request
// boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case nil:
		return http.StatusOK
	case ErrValidation, ErrBadRequest:
		return http.StatusBadRequest
	case ErrConflict:
		return http.StatusConflict
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrLockedOut:
		return http.StatusLocked
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
