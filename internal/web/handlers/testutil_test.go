package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertAPIError checks that the response carries the expected status and message
func assertAPIError(t *testing.T, recorder *httptest.ResponseRecorder, status int, expectedMessage string) {
	t.Helper()
	var result struct {
		StatusCode int    `json:"status_code"`
		Msg        string `json:"msg"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.StatusCode != status {
		t.Errorf("expected status_code %d, got %d", status, result.StatusCode)
	}
	if result.Msg != expectedMessage {
		t.Errorf("expected msg '%s', got '%s'", expectedMessage, result.Msg)
	}
}
