package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestRefreshTokenRejectsMissingToken(t *testing.T) {
	h := NewHandler(nil, zap.NewNop())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty token", `{"refresh_token": ""}`, http.StatusUnauthorized},
		{"missing field", `{}`, http.StatusUnauthorized},
		{"malformed body", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.HandleRefreshToken(rr, req)
			if rr.Code != tt.want {
				t.Errorf("got status %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
