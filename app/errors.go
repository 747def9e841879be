package app

import (
	"fmt"
	"net/http"

	"github.com/nexastudio/creditmeter/domain/quota"
)

// ErrorKind classifies why a tracking call failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindUnknownEventType
	KindInvalidEventData
	KindLimitExceeded
	KindOrganizationNotFound
	KindInternal
)

// Tracking failure messages.
const (
	MsgOrganizationNotFound = "Organization not found"
	MsgInternalError        = "Internal tracking error"
)

// String returns the string representation of an error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnknownEventType:
		return "unknown_event_type"
	case KindInvalidEventData:
		return "invalid_event_data"
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindOrganizationNotFound:
		return "organization_not_found"
	case KindInternal:
		return "internal_tracking_error"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the kind to the status code returned to API callers.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindUnknownEventType:
		return http.StatusBadRequest
	case KindInvalidEventData:
		return http.StatusUnprocessableEntity
	case KindLimitExceeded:
		return http.StatusPaymentRequired
	case KindOrganizationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// outcome is the metrics label for a tracking result of this kind.
func (k ErrorKind) outcome() string {
	switch k {
	case KindNone:
		return "charged"
	case KindUnknownEventType:
		return "unknown_event"
	case KindInvalidEventData:
		return "invalid_data"
	case KindLimitExceeded:
		return "rejected"
	case KindOrganizationNotFound:
		return "org_not_found"
	default:
		return "error"
	}
}

// TrackError describes a failed tracking call.
type TrackError struct {
	Kind    ErrorKind
	Message string

	// Set for KindLimitExceeded.
	Used   int64
	Needed int64
	Limit  int64

	Err error // underlying cause, if any
}

func (e *TrackError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *TrackError) Unwrap() error { return e.Err }

// Is matches any TrackError of the same kind, so the sentinels below work with errors.Is.
func (e *TrackError) Is(target error) bool {
	t, ok := target.(*TrackError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnknownEventType     = &TrackError{Kind: KindUnknownEventType}
	ErrInvalidEventData     = &TrackError{Kind: KindInvalidEventData}
	ErrLimitExceeded        = &TrackError{Kind: KindLimitExceeded}
	ErrOrganizationNotFound = &TrackError{Kind: KindOrganizationNotFound}
	ErrInternal             = &TrackError{Kind: KindInternal}
)

func unknownEventType(eventType string) *TrackError {
	return &TrackError{Kind: KindUnknownEventType, Message: "Unknown event type: " + eventType}
}

func invalidEventData(err error) *TrackError {
	return &TrackError{Kind: KindInvalidEventData, Message: fmt.Sprintf("Invalid event data: %v", err), Err: err}
}

func limitExceeded(used, needed, limit int64) *TrackError {
	return &TrackError{
		Kind:    KindLimitExceeded,
		Message: quota.ExceededReason(used, needed, limit),
		Used:    used,
		Needed:  needed,
		Limit:   limit,
	}
}

func orgNotFound(err error) *TrackError {
	return &TrackError{Kind: KindOrganizationNotFound, Message: MsgOrganizationNotFound, Err: err}
}

func internalError(err error) *TrackError {
	return &TrackError{Kind: KindInternal, Message: MsgInternalError, Err: err}
}
