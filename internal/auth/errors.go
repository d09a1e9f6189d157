package auth

import (
	"encoding/json"
	"net/http"
)

// ErrorCode identifies an authentication failure in the response body
type ErrorCode string

// Error codes
const (
	CodeMissingAuthHeader ErrorCode = "MISSING_AUTH_HEADER"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeAdminRequired     ErrorCode = "ADMIN_REQUIRED"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// Failure is a rejected authentication, ready to be written
type Failure struct {
	Status  int
	Code    ErrorCode
	Message string
	// Header carries the CORS headers for the request origin
	Header http.Header
}

// failures holds the fixed status and error text of each code
var failures = map[ErrorCode]struct {
	status int
	error  string
}{
	CodeMissingAuthHeader: {http.StatusUnauthorized, "Unauthorized"},
	CodeInvalidToken:      {http.StatusUnauthorized, "Unauthorized"},
	CodeAdminRequired:     {http.StatusForbidden, "Forbidden"},
	CodeInternalError:     {http.StatusInternalServerError, "Internal Server Error"},
}

func newFailure(code ErrorCode, message string, header http.Header) *Failure {
	return &Failure{
		Status:  failures[code].status,
		Code:    code,
		Message: message,
		Header:  header,
	}
}

// Write writes the failure headers and JSON envelope to w
func (f *Failure) Write(w http.ResponseWriter) {
	for key, values := range f.Header {
		if key == "Vary" {
			for _, v := range values {
				w.Header().Add(key, v)
			}
			continue
		}
		w.Header()[key] = values
	}
	WriteError(w, f.Status, ErrorResponse{
		Error:   failures[f.Code].error,
		Code:    f.Code,
		Message: f.Message,
	})
}

// WriteError writes body as JSON with the given status code
func WriteError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
