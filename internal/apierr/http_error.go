// Package apierr translates core errors into HTTP responses: handlers
// build one value and call SendJsonErr, instead of hand-writing
// http.Error/json.Marshal at every call site.
package apierr

import (
	"encoding/json"
	"net/http"
)

// ErrorHttp is a JSON-serializable error with an associated HTTP status
// code.
type ErrorHttp struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"error"`
}

// SendJsonErr writes the error as a JSON body with the appropriate status
// code and cache-disabling headers, matching the no-cache convention
// required of every response.
func (e ErrorHttp) SendJsonErr(w http.ResponseWriter) {
	SetNoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// SetNoCache sets the response headers that disable browser caching,
// required on every response.
func SetNoCache(w http.ResponseWriter) {
	w.Header().Set("Expires", "Tue, 01 Jan 1980 00:00:00 GMT")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

// NotFound is a convenience constructor for the common 404 case: unknown
// UUID during resolution, terminal block absent for a project.
func NotFound(msg string) ErrorHttp {
	return ErrorHttp{StatusCode: http.StatusNotFound, Message: msg}
}

// BadRequest is a convenience constructor for the common 400 case: an
// invalid width, for instance.
func BadRequest(msg string) ErrorHttp {
	return ErrorHttp{StatusCode: http.StatusBadRequest, Message: msg}
}

// Internal is a convenience constructor for the common 500 case:
// evaluation failure, subprocess failure, configuration error.
func Internal(msg string) ErrorHttp {
	return ErrorHttp{StatusCode: http.StatusInternalServerError, Message: msg}
}
