package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/stats"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// InsufficientDataMessage 在尚无任何统计数据时返回，不会调用模型。
	InsufficientDataMessage = "No traffic data has been collected yet. Capture your blog statistics with the browser extension first."
	// NarrativeFailureMessage 在模型调用失败、超时或返回空文本时返回。
	NarrativeFailureMessage = "Failed to generate analysis. Please try again later."

	defaultNarrativeTimeout     = 60 * time.Second
	defaultNarrativeMaxTokens   = 1024
	defaultNarrativeTemperature = 0.4
)

const narrativeSystemPrompt = `You are a web traffic analyst reviewing daily statistics for a personal blog.
Write a concise report in Markdown with exactly three sections:
1. Trend summary: describe the overall direction of views and visitors over the period.
2. Anomalies: call out any day whose numbers stand out from the surrounding days and suggest a likely cause.
3. Next actions: give three concrete, forward-looking actions the author can take.
Days with a null value were not captured; do not treat them as zero traffic.`

// NarrativeResult 是分析文本，Degraded 表示返回的是固定兜底文案。
type NarrativeResult struct {
	Text     string
	Degraded bool
}

type narrativePoint struct {
	Date     string `json:"date"`
	Views    *int64 `json:"views"`
	Visitors *int64 `json:"visitors"`
}

// NarrativeService 将统计序列交给文本生成模型，任何失败都降级为固定文案。
type NarrativeService struct {
	generator TextGenerator
	timeout   time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewNarrativeService 创建 NarrativeService，generator 可以为 nil，此时非空序列直接返回失败文案。
func NewNarrativeService(generator TextGenerator) *NarrativeService {
	return &NarrativeService{
		generator: generator,
		timeout:   defaultNarrativeTimeout,
		clock:     clockwork.NewRealClock(),
		logger:    zerolog.Nop(),
	}
}

// WithTimeout 设置模型调用超时。
func (s *NarrativeService) WithTimeout(d time.Duration) *NarrativeService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithClock 替换计时所用的时间源。
func (s *NarrativeService) WithClock(c clockwork.Clock) *NarrativeService {
	if c != nil {
		s.clock = c
	}
	return s
}

// WithMetrics 设置指标收集器。
func (s *NarrativeService) WithMetrics(m *observability.Metrics) *NarrativeService {
	s.metrics = m
	return s
}

// WithLogger 设置日志记录器。
func (s *NarrativeService) WithLogger(l zerolog.Logger) *NarrativeService {
	s.logger = l
	return s
}

// RequestNarrative 为序列生成分析文本，返回模型原文。
func (s *NarrativeService) RequestNarrative(ctx context.Context, series []stats.Record) NarrativeResult {
	if len(series) == 0 {
		s.countRequest("insufficient")
		return NarrativeResult{Text: InsufficientDataMessage}
	}
	if s.generator == nil {
		s.countRequest("error")
		s.logger.Error().Msg("narrative requested without a text generator")
		return NarrativeResult{Text: NarrativeFailureMessage, Degraded: true}
	}

	prompt, err := BuildNarrativePrompt(series)
	if err != nil {
		s.countRequest("error")
		s.logger.Error().Err(err).Msg("failed to build narrative prompt")
		return NarrativeResult{Text: NarrativeFailureMessage, Degraded: true}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.clock.Now()
	resp, err := s.generator.GenerateText(ctx, TextRequest{
		SystemPrompt: narrativeSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    defaultNarrativeMaxTokens,
		Temperature:  defaultNarrativeTemperature,
	})
	if s.metrics != nil {
		s.metrics.NarrativeDuration.Observe(s.clock.Since(started).Seconds())
	}

	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrEmptyCompletion) {
			outcome = "empty"
		}
		s.countRequest(outcome)
		s.logger.Error().Err(err).Int("days", len(series)).Msg("narrative generation failed")
		return NarrativeResult{Text: NarrativeFailureMessage, Degraded: true}
	}

	s.countRequest("success")
	s.logger.Info().
		Int("days", len(series)).
		Int("prompt_tokens", resp.PromptTokens).
		Int("completion_tokens", resp.CompletionTokens).
		Msg("narrative generated")
	return NarrativeResult{Text: resp.Content}
}

func (s *NarrativeService) countRequest(outcome string) {
	if s.metrics != nil {
		s.metrics.NarrativeRequests.WithLabelValues(outcome).Inc()
	}
}

// BuildNarrativePrompt 将序列序列化为 (date, views, visitors) 三元组并附上说明。
func BuildNarrativePrompt(series []stats.Record) (string, error) {
	points := make([]narrativePoint, len(series))
	for i, record := range series {
		points[i] = narrativePoint{Date: record.Date, Views: record.Views, Visitors: record.Visitors}
	}
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("Daily blog traffic, oldest first")
	if len(series) > 0 {
		builder.WriteString(" (")
		builder.WriteString(series[0].Date)
		builder.WriteString(" to ")
		builder.WriteString(series[len(series)-1].Date)
		builder.WriteString(")")
	}
	builder.WriteString(":\n\n")
	builder.Write(data)
	return builder.String(), nil
}
