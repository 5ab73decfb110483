package handlers

import (
	"encoding/json"
	"net/http"
)

// Message returned for paths that match no route.
const errUnknownPath = "The request path structure is incorrect."

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error in the same shape as API responses.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"status_code": status, "msg": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Hello answers the root path so load balancers can probe the service.
func Hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Hello!"))
}

// NotFound answers unknown paths with a JSON error.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, errUnknownPath)
}

// MethodNotAllowed answers known paths called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, "Only POST requests are accepted on this path.")
}
