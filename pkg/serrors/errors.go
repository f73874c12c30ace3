package serrors

import "fmt"

// Base is a coded sentinel error. Components declare their error taxonomy as
// package-level Base values and wrap them with fmt.Errorf("%w: ...") so
// callers can match with errors.Is.
type Base struct {
	Code    string
	Message string
	Doc     string
}

func NewError(code, message, doc string) *Base {
	return &Base{Code: code, Message: message, Doc: doc}
}

func (e *Base) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
