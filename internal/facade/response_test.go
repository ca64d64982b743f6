package facade

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"message": "hello"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["message"] != "hello" {
		t.Errorf("expected message 'hello', got %q", result["message"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "bad input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var result ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidRequest, result.Error.Code)
	}
	if result.Error.Message != "bad input" {
		t.Errorf("expected message 'bad input', got %q", result.Error.Message)
	}
}

func TestDecodeBody_EmptyBodyIsNotAnError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var v map[string]string
	if err := decodeBody(req, &v); err != nil {
		t.Fatalf("expected nil error for empty body, got %v", err)
	}
}

func TestDecodeBody_ParsesJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"path":"/tmp"}`))
	var v struct {
		Path string `json:"path"`
	}
	if err := decodeBody(req, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Path != "/tmp" {
		t.Errorf("expected /tmp, got %q", v.Path)
	}
}
