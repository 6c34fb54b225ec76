package feishu

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes platform API failures.
type ErrorType string

const (
	ErrAuth      ErrorType = "auth_error"   // 401/403 or an invalid/expired tenant token code
	ErrRateLimit ErrorType = "rate_limit"   // 429 or frequency limit code
	ErrServer    ErrorType = "server_error" // 5xx
	ErrClient    ErrorType = "client_error" // other 4xx or non-zero code
	ErrTransport ErrorType = "transport"    // no response, or a 2xx whose body could not be read
)

// Platform codes that mean the bearer token itself is the problem.
var authCodes = map[int]bool{
	99991661: true, // missing access token
	99991663: true, // invalid tenant access token
	99991668: true, // token expired
}

const rateLimitCode = 99991400

// SendError is a failed send-message call.
type SendError struct {
	Status int    // HTTP status, 0 when no response was received
	Code   int    // platform error code from the JSON body, 0 when absent
	Msg    string // platform error message
	Body   string // raw response body for logging
	Err    error  // underlying transport error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feishu send: %v", e.Err)
	}
	return fmt.Sprintf("feishu send: status %d code %d: %s", e.Status, e.Code, e.Body)
}

func (e *SendError) Unwrap() error { return e.Err }

// Type classifies the failure.
func (e *SendError) Type() ErrorType {
	switch {
	case e.Err != nil && e.Status < 300:
		return ErrTransport
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden, authCodes[e.Code]:
		return ErrAuth
	case e.Status == http.StatusTooManyRequests, e.Code == rateLimitCode:
		return ErrRateLimit
	case e.Status >= 500:
		return ErrServer
	default:
		return ErrClient
	}
}

// IsAuth reports whether a fresh token might make the call succeed.
func (e *SendError) IsAuth() bool { return e.Type() == ErrAuth }

// IsAuthError reports whether err is a SendError caused by the token.
func IsAuthError(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.IsAuth()
}
