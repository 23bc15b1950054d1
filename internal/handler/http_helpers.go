package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blogpulse/internal/service"
	"github.com/blogpulse/internal/stats"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

// seriesPoint 是序列在 JSON 响应中的形态，未采集的指标输出为 null。
type seriesPoint struct {
	Date      string `json:"date"`
	Views     *int64 `json:"views"`
	Visitors  *int64 `json:"visitors"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "request body too large"
		}
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func respondStorageError(c *gin.Context, result service.IngestResult) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":       "Failed to store stats",
		"failedDates": result.FailedDates(),
		"dates":       nonNil(result.Dates),
	})
}

func toSeries(records []stats.Record) []seriesPoint {
	points := make([]seriesPoint, len(records))
	for i, record := range records {
		points[i] = seriesPoint{Date: record.Date, Views: record.Views, Visitors: record.Visitors}
		if !record.UpdatedAt.IsZero() {
			points[i].UpdatedAt = record.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	return points
}

// queryDays 读取 days 查询参数，非法值回退到默认窗口，并限制在允许范围内。
func queryDays(c *gin.Context, fallback int) int {
	raw := strings.TrimSpace(c.Query("days"))
	if raw == "" {
		return service.ClampSeriesLimit(fallback)
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return service.ClampSeriesLimit(fallback)
	}
	return service.ClampSeriesLimit(days)
}

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return string(sanitizer.SanitizeBytes(buf.Bytes())), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
