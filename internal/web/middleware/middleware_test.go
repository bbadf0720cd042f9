package middleware

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAllowSubnet(t *testing.T) {
	_, allowed, _ := net.ParseCIDR("192.168.1.0/24")

	tests := []struct {
		name       string
		allowedNet *net.IPNet
		remoteAddr string
		want       int
	}{
		{name: "unrestricted", allowedNet: nil, remoteAddr: "8.8.8.8:1234", want: http.StatusOK},
		{name: "inside subnet", allowedNet: allowed, remoteAddr: "192.168.1.20:1234", want: http.StatusOK},
		{name: "bare ip", allowedNet: allowed, remoteAddr: "192.168.1.20", want: http.StatusOK},
		{name: "outside subnet", allowedNet: allowed, remoteAddr: "10.0.0.1:1234", want: http.StatusForbidden},
		{name: "unparseable", allowedNet: allowed, remoteAddr: "somewhere", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()

			AllowSubnet(tt.allowedNet)(okHandler()).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	h := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	assert.NoError(t, readErr)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("well over eight bytes")))
	assert.Error(t, readErr)
}

func TestLogger_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Logger(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
