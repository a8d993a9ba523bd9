package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// ProblemDetails is the structured error document returned by the API
// (content type application/problem+json)
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId,omitempty"`

	// Extensions holds every non standard member
	Extensions map[string]any `json:"-"`
}

var problemMembers = []string{"type", "title", "status", "detail", "instance", "traceId"}

func (p *ProblemDetails) UnmarshalJSON(data []byte) error {
	type plain ProblemDetails
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range problemMembers {
		delete(raw, key)
	}
	if len(raw) > 0 {
		decoded.Extensions = raw
	}

	*p = ProblemDetails(decoded)
	return nil
}

func (p ProblemDetails) MarshalJSON() ([]byte, error) {
	type plain ProblemDetails
	base, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extensions) == 0 {
		return base, nil
	}

	merged := make(map[string]any, len(p.Extensions)+len(problemMembers))
	for k, v := range p.Extensions {
		merged[k] = v
	}
	var members map[string]any
	if err := json.Unmarshal(base, &members); err != nil {
		return nil, err
	}
	for k, v := range members {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// APIError is the single normalized shape of every failed API call.
// Status 0 means no response reached the client (network error).
type APIError struct {
	Status  int
	Title   string
	Message string
	Problem *ProblemDetails
}

func (e *APIError) Error() string {
	if e.IsNetwork() {
		return "network error: " + e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNetwork reports a failure without any response
func (e *APIError) IsNetwork() bool { return e.Status == 0 }

// IsConflict reports a rejected write due to a stale version stamp
func (e *APIError) IsConflict() bool { return e.Status == http.StatusConflict }

func (e *APIError) IsClientError() bool { return e.Status >= 400 && e.Status < 500 }

func (e *APIError) IsServerError() bool { return e.Status >= 500 }

// IsRetryable reports whether the same request may succeed if sent again
func (e *APIError) IsRetryable() bool {
	return e.IsNetwork() || e.IsServerError() || e.Status == http.StatusTooManyRequests
}

// Detail returns the most specific human readable message available
func (e *APIError) Detail() string {
	if e.Problem != nil && e.Problem.Detail != "" {
		return e.Problem.Detail
	}
	return e.Message
}

// TraceID returns the server trace identifier if the problem carries one
func (e *APIError) TraceID() string {
	if e.Problem == nil {
		return ""
	}
	return e.Problem.TraceID
}

// FieldErrors extracts field level validation messages from the "errors"
// extension. Both {"field": ["msg"]} and [{"field": "f", "message": "msg"}]
// layouts are understood.
func (e *APIError) FieldErrors() map[string][]string {
	if e.Problem == nil || e.Problem.Extensions == nil {
		return nil
	}

	result := make(map[string][]string)
	switch v := e.Problem.Extensions["errors"].(type) {
	case map[string]any:
		for field, msgs := range v {
			switch m := msgs.(type) {
			case string:
				result[field] = append(result[field], m)
			case []any:
				for _, item := range m {
					if s, ok := item.(string); ok {
						result[field] = append(result[field], s)
					}
				}
			}
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			field := firstString(obj, "field", "name", "pointer")
			msg := firstString(obj, "message", "detail")
			if field == "" || msg == "" {
				continue
			}
			result[field] = append(result[field], msg)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// SortedFields returns the keys of FieldErrors in a stable order
func SortedFields(fieldErrors map[string][]string) []string {
	fields := make([]string, 0, len(fieldErrors))
	for f := range fieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// AsAPIError finds an APIError in the chain of err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsConflict reports whether err is a version conflict
func IsConflict(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsConflict()
}
