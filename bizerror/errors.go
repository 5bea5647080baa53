package bizerror

import (
	"errors"
	"fmt"
	"net/http"
	"schoolhub/common"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUserContextMissing = errors.New("user context missing")

	// ErrExplicitDeny: a deny assignment matched. ErrImplicitDeny: no grant matched.
	// Both are 403, but they carry distinct reason codes for audit.
	ErrExplicitDeny = errors.New("access denied by policy")
	ErrImplicitDeny = errors.New("no policy grants access")
)

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *common.BizErrorDetail {
	message := "common.bad_param"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &common.BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message, Data: nil}
}

// ErrImmutableField is raised when an update tries to change a field which is
// frozen after creation, e.g. a role code.
type ErrImmutableField struct {
	Field string
}

func (e *ErrImmutableField) Error() string {
	return "field " + e.Field + " is immutable"
}
func (e *ErrImmutableField) Respond() *common.BizErrorDetail {
	return &common.BizErrorDetail{Status: http.StatusBadRequest, Code: "common.immutable_field",
		Message: e.Error(), Data: e.Field}
}

// ErrResourceInUse is raised when a deletion is blocked by records which still
// reference the target, carrying the reference count.
type ErrResourceInUse struct {
	Resource   string
	References int
}

func (e *ErrResourceInUse) Error() string {
	return fmt.Sprintf("%s is referenced by %d records", e.Resource, e.References)
}
func (e *ErrResourceInUse) Respond() *common.BizErrorDetail {
	return &common.BizErrorDetail{Status: http.StatusConflict, Code: "common.resource_in_use",
		Message: e.Error(), Data: e.References}
}

// ErrUnknownScope marks a persisted policy assignment whose scope value is
// outside the defined set. It is a data-integrity fault and fails closed.
type ErrUnknownScope struct {
	Scope string
}

func (e *ErrUnknownScope) Error() string {
	return "unknown policy scope: " + e.Scope
}
func (e *ErrUnknownScope) Respond() *common.BizErrorDetail {
	return &common.BizErrorDetail{Status: http.StatusInternalServerError, Code: "security.unknown_scope",
		Message: e.Error(), Data: e.Scope}
}
