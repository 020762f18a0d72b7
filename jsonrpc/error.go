package jsonrpc

import "fmt"

// Error is used to provide additional information about the error that occurred.
type Error struct {
	// The error type that occurred.
	Code int `json:"code"`

	// A short description of the error. The message SHOULD be limited to a concise
	// single sentence.
	Message string `json:"message"`

	// Additional information about the error. The value of this member is defined by
	// the sender (e.g. detailed error information, nested errors etc.).
	Data interface{} `json:"data,omitempty"`
}

// Error returns the error message
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// NewError creates a new Error with the supplied code, message and data.
func NewError(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// NewParsingError creates a new parsing error
func NewParsingError(message string, data interface{}) *Error {
	return NewError(ParseError, message, data)
}

// NewInvalidRequest creates a new invalid request error
func NewInvalidRequest(message string, data interface{}) *Error {
	return NewError(InvalidRequest, message, data)
}

// NewInvalidParamsError creates a new invalid params error
func NewInvalidParamsError(message string, data interface{}) *Error {
	return NewError(InvalidParams, message, data)
}

// NewMethodNotFound creates a new method not found error carrying the method name.
func NewMethodNotFound(method string) *Error {
	return NewError(MethodNotFound, fmt.Sprintf("method not found: %s", method), map[string]string{"method": method})
}

// NewInternalError creates a new internal error
func NewInternalError(message string, data interface{}) *Error {
	return NewError(InternalError, message, data)
}
