// Package httpx provides HTTP response utilities built around the
// {success, data, message, error, details} envelope.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/fynity/fynity/internal/shared"
)

// MaxBodyBytes bounds decoded request bodies.
const MaxBodyBytes = 1 << 20

// SuccessEnvelope is the payload written for successful requests.
type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// ErrorEnvelope is the payload written for failed requests.
type ErrorEnvelope struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details shared.Details `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success writes a success envelope.
func Success(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, SuccessEnvelope{Success: true, Data: data, Message: message})
}

// Fail writes the envelope for a classified error.
func Fail(w http.ResponseWriter, e *shared.Error) {
	body := ErrorEnvelope{
		Success: false,
		Error:   string(e.Kind),
		Message: e.Message,
	}
	if len(e.Details) > 0 {
		body.Details = e.Details
	}
	JSON(w, e.StatusCode(), body)
}

// ErrMalformedBody is returned by DecodeJSON for unreadable payloads.
var ErrMalformedBody = errors.New("malformed request body")

// DecodeJSON decodes JSON request body into the target struct. An empty
// body leaves target untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Join(ErrMalformedBody, err)
	}
	return nil
}

// DecodeDetails keys a DecodeJSON type mismatch by the offending field.
// Syntax errors and mismatches outside an object field yield nil.
func DecodeDetails(err error) shared.Details {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) || typeErr.Field == "" {
		return nil
	}
	details := shared.Details{}
	details.Add(typeErr.Field, mismatchMessage(typeErr.Type))
	return details
}

func mismatchMessage(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "Invalid value."
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "A valid integer is required."
	case reflect.Float32, reflect.Float64:
		return "A valid number is required."
	case reflect.Bool:
		return "Must be a valid boolean."
	case reflect.String:
		return "Not a valid string."
	default:
		return "Invalid value."
	}
}
