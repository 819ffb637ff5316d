package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	allowed := []string{"localhost:3000", "*.example.com"}

	tests := []struct {
		Name              string
		method            string
		origin            string
		wantHandlerCalled bool
		wantCode          int
		wantAllowOrigin   string
	}{
		{"no_origin", http.MethodPost, "", true, http.StatusOK, ""},
		{"same_origin", http.MethodPost, "http://relay.test", true, http.StatusOK, "http://relay.test"},
		{"allowed_origin", http.MethodPost, "http://localhost:3000", true, http.StatusOK, "http://localhost:3000"},
		{"allowed_glob", http.MethodPost, "https://chat.EXAMPLE.com", true, http.StatusOK, "https://chat.EXAMPLE.com"},
		{"disallowed_origin", http.MethodPost, "https://evil.test", false, http.StatusForbidden, ""},
		{"garbage_origin", http.MethodPost, "::not a url", false, http.StatusForbidden, ""},
		{"preflight", http.MethodOptions, "http://localhost:3000", false, http.StatusNoContent, "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://relay.test/upload", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			isHandlerCalled := false
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				isHandlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			CORS(allowed)(nextHandler).ServeHTTP(rec, req)

			if isHandlerCalled != tt.wantHandlerCalled {
				t.Errorf("handler called = %v, want %v", isHandlerCalled, tt.wantHandlerCalled)
			}

			if rec.Code != tt.wantCode {
				t.Errorf("want %d, got %d", tt.wantCode, rec.Code)
			}

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowOrigin)
			}
		})
	}
}
