package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecurity struct {
	origin     string
	rateLimits int
	limitAfter int
}

func (f *fakeSecurity) ValidateOrigin(origin string) bool {
	return origin != "" && strings.HasPrefix(origin, f.origin)
}

func (f *fakeSecurity) IssueSessionToken(string, time.Time) (token.Issued, error) {
	return token.Issued{}, nil
}

func (f *fakeSecurity) VerifyToken(string, string) (*token.Claims, error) { return nil, nil }

func (f *fakeSecurity) VerifyRecaptcha(context.Context, string, string) error { return nil }

func (f *fakeSecurity) RateLimit(context.Context, string) error {
	f.rateLimits++
	if f.limitAfter > 0 && f.rateLimits > f.limitAfter {
		return apperr.New(apperr.RateLimited)
	}
	return nil
}

func (f *fakeSecurity) DetectAutomation(service.RequestShape) error { return nil }

func newTestEngine(security service.SecurityService, metrics *observability.Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(security, metrics))
	guarded := r.Group("/", OriginGuard(security, metrics), RateLimitGuard(security, metrics))
	guarded.POST("/chat", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestOriginGuard(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	r := newTestEngine(&fakeSecurity{origin: "https://app.example.com"}, metrics)

	cases := []struct {
		name   string
		origin string
		status int
	}{
		{"allowed", "https://app.example.com", http.StatusOK},
		{"allowed prefix", "https://app.example.com.cdn", http.StatusOK},
		{"missing", "", http.StatusForbidden},
		{"foreign", "https://evil.example.org", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusForbidden {
				body := decodeError(t, w)
				assert.Equal(t, "Origin not allowed", body["error"])
				assert.Equal(t, "ORIGIN_DENIED", body["code"])
			}
		})
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SecurityRejections.WithLabelValues("OriginDenied")))
}

func TestCORSPreflight(t *testing.T) {
	r := newTestEngine(&fakeSecurity{origin: "https://app.example.com"}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Session-Token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Session-Token")
}

func TestHealthWithoutOrigin(t *testing.T) {
	r := newTestEngine(&fakeSecurity{origin: "https://app.example.com"}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitGuard(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	r := newTestEngine(&fakeSecurity{origin: "https://app.example.com", limitAfter: 2}, metrics)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "RATE_LIMITED", decodeError(t, w)["code"])
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SecurityRejections.WithLabelValues("RateLimited")))
}

func TestErrorBodyHidesInternalDetail(t *testing.T) {
	status, body := ErrorBody(apperr.Wrap(apperr.UpstreamModelFailure, context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "UPSTREAM_MODEL_FAILURE", body["code"])
	assert.NotContains(t, body["error"], "deadline")

	assert.True(t, IsSecurityRejection(apperr.New(apperr.InvalidToken)))
	assert.False(t, IsSecurityRejection(apperr.New(apperr.ValidationError)))
}

func TestRedactBody(t *testing.T) {
	in := `{"session_token": "abc.def.ghi","recaptchaToken":"xyz","message":"hi","client_key":"k"}`
	out := redactBody([]byte(in))
	assert.NotContains(t, out, "abc.def.ghi")
	assert.NotContains(t, out, "xyz")
	assert.Contains(t, out, `"session_token": "***"`)
	assert.Contains(t, out, `"client_key":"***"`)
	assert.Contains(t, out, `"message":"hi"`)

	long := strings.Repeat("a", maxLoggedBody*2)
	assert.Len(t, redactBody([]byte(long)), maxLoggedBody)
}

func TestRedactBody_TokenAcrossSizeLimit(t *testing.T) {
	prefix := `{"message":"` + strings.Repeat("x", maxLoggedBody-40) + `",`
	secret := strings.Repeat("S", 200)
	in := prefix + `"session_token":"` + secret + `"}`
	require.Greater(t, len(in), maxLoggedBody)

	out := redactBody([]byte(in))
	assert.LessOrEqual(t, len(out), maxLoggedBody)
	assert.NotContains(t, out, "SSSS")
}
