package booking

import "fmt"

// Kind classifies why a booking operation failed.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindValidation       Kind = "ValidationError"
	KindInThePast        Kind = "InThePast"
	KindSlotUnavailable  Kind = "SlotUnavailable"
	KindSlotAlreadyTaken Kind = "SlotAlreadyTaken"
	KindStoreFailure     Kind = "StoreFailure"
)

// Error is a classified failure. Reason is safe to show to the caller; Err
// keeps the underlying cause for logs.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, so errors.Is(err, ErrSlotUnavailable) holds for any
// SlotUnavailable error regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound, Reason: "Not found"}
	ErrValidation       = &Error{Kind: KindValidation, Reason: "Invalid request"}
	ErrInThePast        = &Error{Kind: KindInThePast, Reason: "Cannot book appointments in the past"}
	ErrSlotUnavailable  = &Error{Kind: KindSlotUnavailable, Reason: "This time slot is not available"}
	ErrSlotAlreadyTaken = &Error{Kind: KindSlotAlreadyTaken, Reason: "This time slot was just booked by someone else"}
	ErrStoreFailure     = &Error{Kind: KindStoreFailure, Reason: "Internal error"}
)

func notFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func invalid(reason string) error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func storeFailure(reason string, err error) error {
	return &Error{Kind: KindStoreFailure, Reason: reason, Err: err}
}
