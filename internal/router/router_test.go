package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/handler"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

var routerTestDBSeq atomic.Int64

type stubGenerator struct{ content string }

func (g stubGenerator) GenerateText(context.Context, service.TextRequest) (service.TextResponse, error) {
	return service.TextResponse{Content: g.content}, nil
}

func setupTestRouter(t *testing.T, configErr error) (*gin.Engine, *gorm.DB, *observability.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-test-%d?mode=memory&cache=shared", routerTestDBSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	metrics := observability.NewMetricsForTesting()
	api := handler.NewAPI(gdb, service.NewStatsService(gdb), service.NewNarrativeService(stubGenerator{content: "ok"}), 30)
	r := SetupRouter(Options{
		API:       api,
		ConfigErr: configErr,
		APISecret: testSecret,
		Metrics:   metrics,
		Logger:    zerolog.Nop(),
	})
	return r, gdb, metrics
}

func countStats(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(&db.BlogStat{}).Count(&n).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	return n
}

const validUpload = `{"date":"2024-01-15","views":10,"visitors":2}`

func TestUploadRejectsWrongOrMissingSecret(t *testing.T) {
	r, gdb, metrics := setupTestRouter(t, nil)

	views, visitors := int64(100), int64(40)
	seeded := db.BlogStat{
		Date:              "2024-01-15",
		Views:             &views,
		Visitors:          &visitors,
		RawPayloadArchive: []byte(`{"views":{"pv":100}}`),
	}
	if err := gdb.Create(&seeded).Error; err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	for name, headers := range map[string]map[string]string{
		"missing":      {},
		"wrong key":    {"x-api-key": "nope"},
		"wrong secret": {"x-api-secret": "test-secret-2"},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/upload-stats", strings.NewReader(validUpload))
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if strings.Contains(rr.Body.String(), testSecret) {
				t.Fatalf("response must not leak the secret")
			}
		})
	}

	if n := countStats(t, gdb); n != 1 {
		t.Fatalf("unauthorized uploads must not write, found %d rows", n)
	}
	var stored db.BlogStat
	if err := gdb.Where("date = ?", "2024-01-15").First(&stored).Error; err != nil {
		t.Fatalf("failed to reload record: %v", err)
	}
	if stored.Views == nil || *stored.Views != 100 || stored.Visitors == nil || *stored.Visitors != 40 {
		t.Fatalf("unauthorized uploads must not modify the record, got views=%v visitors=%v", stored.Views, stored.Visitors)
	}
	if string(stored.RawPayloadArchive) != string(seeded.RawPayloadArchive) {
		t.Fatalf("archive changed: %s", stored.RawPayloadArchive)
	}
	if stored.UpdatedAt.Sub(seeded.UpdatedAt).Abs() > time.Millisecond {
		t.Fatalf("updated_at changed from %v to %v", seeded.UpdatedAt, stored.UpdatedAt)
	}
	if got := testutil.ToFloat64(metrics.AuthFailures); got != 3 {
		t.Fatalf("expected 3 auth failures, got %v", got)
	}
}

func TestUploadAcceptsEitherSecretHeader(t *testing.T) {
	r, gdb, _ := setupTestRouter(t, nil)

	for _, header := range []string{"x-api-key", "x-api-secret"} {
		req := httptest.NewRequest(http.MethodPost, "/upload-stats", strings.NewReader(validUpload))
		req.Header.Set(header, testSecret)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", header, rr.Code, rr.Body.String())
		}
	}
	if n := countStats(t, gdb); n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestPreflightReturnsNoContent(t *testing.T) {
	r, _, _ := setupTestRouter(t, nil)

	for _, path := range []string{"/upload-stats", "/analyze", "/anything"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "chrome-extension://abc")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", path, rr.Code)
		}
		if rr.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body, got %q", path, rr.Body.String())
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("%s: unexpected allow-origin %q", path, got)
		}
		if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "x-api-key") || !strings.Contains(got, "Content-Type") {
			t.Fatalf("%s: unexpected allow-headers %q", path, got)
		}
	}
}

func TestConfigErrorRefusesRequests(t *testing.T) {
	cfgErr := &config.Error{Missing: []string{"DATABASE_URL", "AI_API_KEY"}}
	r, gdb, _ := setupTestRouter(t, cfgErr)

	req := httptest.NewRequest(http.MethodPost, "/upload-stats", strings.NewReader(validUpload))
	req.Header.Set("x-api-key", testSecret)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Server Configuration Error") || !strings.Contains(rr.Body.String(), "DATABASE_URL") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if n := countStats(t, gdb); n != 0 {
		t.Fatalf("config errors must not write, found %d rows", n)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected analyze to be refused, got %d", rr.Code)
	}
}

func TestAnalyzeThroughRouter(t *testing.T) {
	r, _, _ := setupTestRouter(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), service.InsufficientDataMessage) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS headers on regular responses")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	r, _, _ := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := setupTestRouter(t, &config.Error{Missing: []string{"API_SECRET"}})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics to be served without config, got %d", rr.Code)
	}
}
