package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

// ResponseError is a non-2xx answer from the backend
type ResponseError struct {
	Endpoint string
	Status   int
	// Detail is the most specific human-readable message found in the body
	Detail string
	Body   []byte
}

func (e *ResponseError) Error() string {
	return e.coded().Error()
}

// Unwrap exposes the coded form so errors.Code and exit codes see API-001
func (e *ResponseError) Unwrap() error {
	return e.coded()
}

func (e *ResponseError) coded() *errors.HangarError {
	return errors.NewAPIResponseError(e.Endpoint, e.Status, e.Detail)
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var re *ResponseError
	if stderrors.As(err, &re) {
		return re.Status
	}
	return 0
}

// DetailOf returns the backend's message carried by err, or ""
func DetailOf(err error) string {
	var re *ResponseError
	if stderrors.As(err, &re) {
		return re.Detail
	}
	return ""
}

// IsUnauthorized reports whether the backend rejected the bearer token
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// errorBody covers the shapes the backend uses for failures:
// {"detail": "..."}, {"detail": {"non_field_errors": [...], "parts_used": [...]}},
// {"message": "..."}, {"error": "..."}, {"fallback_message": "..."} and DRF
// field maps {"email": ["..."]}.
type errorBody struct {
	Detail          json.RawMessage `json:"detail"`
	Message         string          `json:"message"`
	Error           string          `json:"error"`
	FallbackMessage string          `json:"fallback_message"`
}

// extractDetail finds the most specific message in a failure body
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var list []string
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return list[0]
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}

	if msg := detailMessage(eb.Detail); msg != "" {
		return msg
	}
	for _, msg := range []string{eb.Message, eb.Error, eb.FallbackMessage} {
		if msg != "" {
			return msg
		}
	}

	return fieldMessage(body)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		for _, key := range []string{"non_field_errors", "parts_used"} {
			if msg := detailMessage(fields[key]); msg != "" {
				return msg
			}
		}
		return fieldMessage(raw)
	}
	return ""
}

// fieldMessage renders the first DRF field error as "field: message",
// choosing fields in name order so the result is stable.
func fieldMessage(raw []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var msgs []string
		if err := json.Unmarshal(fields[k], &msgs); err == nil && len(msgs) > 0 {
			return fmt.Sprintf("%s: %s", k, strings.Join(msgs, " "))
		}
	}
	return ""
}
