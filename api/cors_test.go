package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/b0bbywan/odio-bluetooth/config"
)

var nopHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantOrigin string
		wantVary   string
		wantStatus int
	}{
		{"wildcard", []string{"*"}, http.MethodGet, "https://app.example.com", "*", "", http.StatusOK},
		{"wildcard without origin", []string{"*"}, http.MethodGet, "", "", "", http.StatusOK},
		{"allowed origin", []string{"https://a.example.com", "https://b.example.com"}, http.MethodGet, "https://b.example.com", "https://b.example.com", "Origin", http.StatusOK},
		{"unknown origin", []string{"https://a.example.com"}, http.MethodGet, "https://evil.example.com", "", "", http.StatusOK},
		{"preflight", []string{"*"}, http.MethodOptions, "https://app.example.com", "*", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := corsMiddleware(&config.CORSConfig{Origins: tt.origins})(nopHandler)
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("ACAO = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Vary"); got != tt.wantVary {
				t.Errorf("Vary = %q, want %q", got, tt.wantVary)
			}
			if tt.method == http.MethodOptions && w.Header().Get("Access-Control-Allow-Methods") == "" {
				t.Error("preflight should list allowed methods")
			}
		})
	}
}
