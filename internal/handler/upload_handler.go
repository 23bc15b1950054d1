package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blogpulse/internal/service"
	"github.com/blogpulse/internal/stats"
	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 4 << 20

var (
	metricKeys    = []string{"metricType", "dataType"}
	payloadKeys   = []string{"rawNaverPayload", "data"}
	rawDataKeys   = []string{"rawData", "raw_data"}
	canonicalKeys = []string{"date", "views", "visitors"}
)

// UploadStats 接收浏览器扩展上传的统计数据。
// 请求体有两种形态：metricType + rawNaverPayload 的抓取载荷，或 date + views + visitors 的单日数据。
func (a *API) UploadStats(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	var fields map[string]json.RawMessage
	if !bindJSON(c, &fields, "request body must be a JSON object") {
		return
	}

	var result service.IngestResult
	switch {
	case present(fields, metricKeys...):
		metric, payload, err := parseBatchUpload(fields)
		if err != nil {
			respondValidationError(c, err)
			return
		}
		result = a.stats.IngestPayload(c.Request.Context(), metric, payload)
	case present(fields, canonicalKeys...):
		stat, err := parseCanonicalUpload(fields)
		if err != nil {
			respondValidationError(c, err)
			return
		}
		result = a.stats.IngestCanonical(c.Request.Context(), stat)
	default:
		respondError(c, http.StatusBadRequest, "body must contain metricType and rawNaverPayload, or date, views and visitors")
		return
	}

	if result.Err() != nil {
		respondStorageError(c, result)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"written": len(result.Dates),
		"dates":   nonNil(result.Dates),
		"skipped": result.Skipped,
	})
}

func parseBatchUpload(fields map[string]json.RawMessage) (stats.Metric, json.RawMessage, error) {
	var rawMetric string
	if err := json.Unmarshal(first(fields, metricKeys...), &rawMetric); err != nil {
		return "", nil, service.NewValidationError("metricType must be a string")
	}
	metric, ok := stats.ParseMetric(rawMetric)
	if !ok {
		return "", nil, service.NewValidationError("unknown metricType %q", rawMetric)
	}

	payload := first(fields, payloadKeys...)
	if payload == nil {
		return "", nil, service.NewValidationError("rawNaverPayload is required")
	}
	// 部分扩展版本把抓取结果序列化成字符串后再上传。
	if bytes.HasPrefix(payload, []byte(`"`)) {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil || !json.Valid([]byte(inner)) {
			return "", nil, service.NewValidationError("rawNaverPayload must be JSON")
		}
		payload = json.RawMessage(inner)
	}
	return metric, payload, nil
}

func parseCanonicalUpload(fields map[string]json.RawMessage) (service.CanonicalStat, error) {
	for _, key := range canonicalKeys {
		if first(fields, key) == nil {
			return service.CanonicalStat{}, service.NewValidationError("%s is required", key)
		}
	}

	date, err := stats.DecodeDate(fields["date"])
	if err != nil {
		return service.CanonicalStat{}, service.NewValidationError("invalid date: %v", err)
	}
	views, err := stats.DecodeCount(fields["views"])
	if err != nil {
		return service.CanonicalStat{}, service.NewValidationError("invalid views: %v", err)
	}
	visitors, err := stats.DecodeCount(fields["visitors"])
	if err != nil {
		return service.CanonicalStat{}, service.NewValidationError("invalid visitors: %v", err)
	}

	return service.CanonicalStat{
		Date:     date,
		Views:    views,
		Visitors: visitors,
		RawData:  first(fields, rawDataKeys...),
	}, nil
}

func respondValidationError(c *gin.Context, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		respondError(c, http.StatusBadRequest, validation.Reason)
		return
	}
	respondError(c, http.StatusBadRequest, err.Error())
}

// first 返回第一个存在且非 null 的字段。
func first(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			return raw
		}
	}
	return nil
}

func present(fields map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}
