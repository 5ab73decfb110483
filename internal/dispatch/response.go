package dispatch

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/facematch"
)

// Response is the body returned for every request.
type Response struct {
	StatusCode int    `json:"status_code"`
	Msg        string `json:"msg"`
	Data       any    `json:"data,omitempty"`
}

// Succeeded reports whether the request completed.
func (r *Response) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// GroupInfo identifies the gallery a recognition ran against.
type GroupInfo struct {
	GroupID  ID                `json:"gid"`
	TenantID database.TenantID `json:"merid"`
}

// RecognizeResult is the data of a successful recognition.
type RecognizeResult struct {
	Info GroupInfo             `json:"info"`
	Data []facematch.Candidate `json:"data"`
}

func okResponse(msg string, data any) *Response {
	return &Response{StatusCode: http.StatusOK, Msg: msg, Data: data}
}

func errorResponse(err *Error) *Response {
	return &Response{StatusCode: err.Kind.Status(), Msg: err.Msg}
}

const maxAuditBody = 4096

// redactRequest serializes a request body for the audit log with the client
// secret masked and every img field replaced by its length.
func redactRequest(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return auditText(body)
	}
	if api, ok := payload["api"].(map[string]any); ok {
		if _, ok := api["key"]; ok {
			api["key"] = "***"
		}
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if img, ok := data["img"].(string); ok {
			data["img"] = len(img)
		}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(out)
}

// auditText makes a raw body safe for a text column: at most maxAuditBody
// bytes cut on a rune boundary, invalid UTF-8 replaced and NUL bytes dropped.
func auditText(body []byte) string {
	if len(body) > maxAuditBody {
		cut := maxAuditBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	text := strings.ToValidUTF8(string(body), string(utf8.RuneError))
	return strings.ReplaceAll(text, "\x00", "")
}

func serializeResponse(resp *Response) string {
	out, err := json.Marshal(resp)
	if err != nil {
		return resp.Msg
	}
	return string(out)
}
