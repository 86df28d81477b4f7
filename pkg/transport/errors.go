package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// ResponseError is returned for every response with status >= 400.
type ResponseError struct {
	URL     string
	Method  string
	Status  int
	Message string
	Data    map[string]any
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pocketbase: %s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("pocketbase: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
}

// Is lets callers match on the status family with errors.Is.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// NewResponseError builds a ResponseError the way the server would have for
// a status with an empty body, e.g. for a client side "not found".
func NewResponseError(method, url string, status int, message string) *ResponseError {
	return &ResponseError{
		URL:     url,
		Method:  method,
		Status:  status,
		Message: message,
		Data:    map[string]any{"status": status, "message": message, "data": map[string]any{}},
	}
}

func readResponseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	rerr := &ResponseError{
		URL:    resp.Request.URL.String(),
		Method: resp.Request.Method,
		Status: resp.StatusCode,
	}

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		rerr.Message = parsed.Get("message").String()
		if m, ok := parsed.Value().(map[string]any); ok {
			rerr.Data = m
		}
	} else if len(body) > 0 {
		rerr.Message = string(body)
	}

	return rerr
}
