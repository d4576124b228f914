package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
)

func TestJSONHandler(t *testing.T) {
	handler := JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", w.Code)
	}

	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", w.Header().Get("Content-Type"))
	}

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	if err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("status = %s, want ok", result["status"])
	}
}

func TestJSONHandlerError(t *testing.T) {
	handler := JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return nil, http.ErrServerClosed
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", w.Code)
	}
}

func BenchmarkJSONHandler(b *testing.B) {
	handler := JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return map[string]string{"test": "data"}, nil
	})

	req := httptest.NewRequest("GET", "/test", nil)

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		handler(w, req)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"device not found", &bluetooth.DeviceNotFoundError{ID: "dev_AA"}, http.StatusNotFound},
		{"request not found", &bluetooth.RequestNotFoundError{ID: "req"}, http.StatusNotFound},
		{"validation", &bluetooth.ValidationError{Field: "pin", Reason: "too long"}, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("reply: %w", &bluetooth.ValidationError{Field: "pin", Reason: "x"}), http.StatusBadRequest},
		{"prompt unavailable", bluetooth.ErrPromptUnavailable, http.StatusConflict},
		{"no adapter", bluetooth.ErrNoAdapter, http.StatusServiceUnavailable},
		{"not ready", bluetooth.ErrNotReady, http.StatusServiceUnavailable},
		{"loop stopped", bluetooth.ErrLoopStopped, http.StatusServiceUnavailable},
		{"remote unavailable", &bluetooth.RemoteUnavailableError{Path: "/org/bluez/hci0", Err: errors.New("no reply")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

func TestWithBody(t *testing.T) {
	validate := func(r *nameRequest) error {
		if r.Name == "" {
			return errors.New("name is required")
		}
		return nil
	}
	var got string
	handler := withBody(validate, func(w http.ResponseWriter, r *http.Request, req *nameRequest) {
		got = req.Name
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		body   string
		status int
		name   string
	}{
		{`{"name":"Speaker"}`, http.StatusNoContent, "Speaker"},
		{`{}`, http.StatusBadRequest, ""},
		{`not json`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		got = ""
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
		w := httptest.NewRecorder()
		handler(w, req)
		if w.Code != tt.status {
			t.Errorf("body %q: status = %d, want %d", tt.body, w.Code, tt.status)
		}
		if got != tt.name {
			t.Errorf("body %q: name = %q, want %q", tt.body, got, tt.name)
		}
	}
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	accepted(w, nil)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}

	w = httptest.NewRecorder()
	accepted(w, &bluetooth.DeviceNotFoundError{ID: "dev_AA"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
