// Package httpx provides HTTP response utilities.
package httpx

import "net/http"

// Canned problem responses shared by handlers and middleware. Internal
// error text never travels in a response body.

// Unauthorized sends a 401 problem response.
func Unauthorized(w http.ResponseWriter) {
	Problem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "")
}

// NotFound sends a 404 problem response.
func NotFound(w http.ResponseWriter) {
	Problem(w, http.StatusNotFound, "not_found", "Not Found", "")
}

// Internal sends a 500 problem response.
func Internal(w http.ResponseWriter) {
	Problem(w, http.StatusInternalServerError, "internal_error", "Internal Error", "")
}
