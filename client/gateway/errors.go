package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnauthorized is returned when the backend rejects the stored credentials.
// The credentials have already been cleared when it is returned.
var ErrUnauthorized = errors.New("session expired, please log in again")

type Kind int

const (
	KindTransport Kind = iota + 1
	KindValidation
	KindUnauthorized
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Error is a failed backend call with its message normalized for display.
type Error struct {
	Kind    Kind
	Status  int               // zero for transport failures
	Message string            // human readable
	Fields  map[string]string // per field messages of a validation rejection
	Err     error             // underlying transport error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies any error returned by the Client.
func KindOf(err error) Kind {
	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransport
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf("could not reach the server: %v", errors.Cause(err)), Err: err}
}

// responseError reads the backend's error body: either {"error": msg} or {field: msg}.
func responseError(status int, body []byte) *Error {
	gwErr := &Error{Kind: KindValidation, Status: status}
	if status >= http.StatusInternalServerError {
		gwErr.Kind = KindServer
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg, ok := payload["error"].(string); ok && len(payload) == 1 {
			gwErr.Message = msg
		} else if len(payload) > 0 {
			gwErr.Fields = make(map[string]string, len(payload))
			for field, val := range payload {
				gwErr.Fields[field] = fmt.Sprint(val)
			}
			gwErr.Message = joinFields(gwErr.Fields)
		}
	}
	if gwErr.Message == "" {
		gwErr.Message = strings.ToLower(http.StatusText(status))
	}
	return gwErr
}

func joinFields(fields map[string]string) string {
	if len(fields) == 1 {
		for _, msg := range fields {
			return msg
		}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + fields[name]
	}
	return strings.Join(parts, "; ")
}
