package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("real-time channel is not connected")
	ErrConversationClosed = errors.New("conversation was closed")
	ErrForbidden          = errors.New("access denied")
	ErrEmptyDraft         = errors.New("empty message was not allowed")
	ErrEmptySelection     = errors.New("nothing was selected")
)

// TransportError is a failure to reach the other side at all. It is the only
// kind of failure that makes the delivery coordinator try the other path.
type TransportError struct {
	Op  string
	Err error
}

func (v *TransportError) Error() string {
	return fmt.Sprintf("transport fault during %s: %v", v.Op, v.Err)
}

func (v *TransportError) Unwrap() error {
	return v.Err
}

func IsTransportFault(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// ContentRejectedError means the server refused the content itself. It is a
// terminal outcome and never a fault.
type ContentRejectedError struct {
	Reason string
}

func (v *ContentRejectedError) Error() string {
	if len(v.Reason) == 0 {
		return "message was rejected by the content policy"
	}
	return fmt.Sprintf("message was rejected by the content policy: %s", v.Reason)
}

func IsContentRejected(err error) bool {
	var target *ContentRejectedError
	return errors.As(err, &target)
}

// APIError is an application level failure reported by the REST API.
type APIError struct {
	Status  int
	Message string
}

func (v *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", v.Status, v.Message)
}
