package api

import "fmt"

// ErrorType is the category of an APIError. The HTTP layer derives the
// status code from it.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeNotImplemented  ErrorType = "not_implemented"
)

// APIError is the body of every non-2xx reply.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return string(e.Type) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// WithCode returns a copy of e carrying a machine-readable code.
func (e *APIError) WithCode(code string) *APIError {
	c := *e
	c.Code = code
	return &c
}

// ErrorResponse is the {"error": {...}} envelope.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, param, message string) *APIError {
	return &APIError{Type: t, Param: param, Message: message}
}

// NewInvalidRequestError reports a bad request field named by param.
func NewInvalidRequestError(param, message string) *APIError {
	return newError(ErrorTypeInvalidRequest, param, message)
}

// NewNotFoundError reports an unknown execution or route.
func NewNotFoundError(message string) *APIError {
	return newError(ErrorTypeNotFound, "", message)
}

func NewServerError(message string) *APIError {
	return newError(ErrorTypeServerError, "", message)
}

// NewTooManyRequestsError reports exhausted execution slots or a rate limit.
func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, "", message)
}

// NewNotImplementedError reports an operation the deployment was not
// configured for, such as record lookups without storage.
func NewNotImplementedError(message string) *APIError {
	return newError(ErrorTypeNotImplemented, "", message)
}
