package handler

import (
	"bytes"
	"net/http"

	"github.com/blogpulse/internal/chart"
	"github.com/gin-gonic/gin"
)

// Analyze 读取最近的统计序列并返回模型生成的分析文本。
// 没有数据时返回固定提示与空序列，模型失败时返回固定兜底文案，两种情况都是 200。
func (a *API) Analyze(c *gin.Context) {
	ctx := c.Request.Context()

	series, err := a.stats.RecentStats(ctx, a.analysisDays)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to load stats for analysis")
		respondError(c, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	result := a.narratives.RequestNarrative(ctx, series)
	narrativeHTML, err := renderMarkdown(result.Text)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to render narrative markdown")
		narrativeHTML = ""
	}

	c.JSON(http.StatusOK, gin.H{
		"narrativeText": result.Text,
		"narrativeHtml": narrativeHTML,
		"series":        toSeries(series),
		"degraded":      result.Degraded,
	})
}

// Stats 返回最近 days 天的序列与汇总，供仪表盘绘图使用。
func (a *API) Stats(c *gin.Context) {
	days := queryDays(c, a.analysisDays)

	series, summary, err := a.stats.Summary(c.Request.Context(), days)
	if err != nil {
		a.logger.Error().Err(err).Int("days", days).Msg("failed to load stats")
		respondError(c, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"series":  toSeries(series),
		"summary": summary,
	})
}

// Chart 以 PNG 折线图形式返回最近 days 天的浏览量与访客数。
func (a *API) Chart(c *gin.Context) {
	days := queryDays(c, a.analysisDays)

	series, err := a.stats.RecentStats(c.Request.Context(), days)
	if err != nil {
		a.logger.Error().Err(err).Int("days", days).Msg("failed to load stats for chart")
		respondError(c, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, series, chart.Options{}); err != nil {
		a.logger.Error().Err(err).Msg("failed to render chart")
		respondError(c, http.StatusInternalServerError, "Failed to render chart")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
