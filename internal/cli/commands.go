package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/service"
	"github.com/blogpulse/internal/stats"
	"gorm.io/gorm"
)

var errDatabaseURLRequired = errors.New("--database-url or DATABASE_URL is required")

type payloadArgs struct {
	File string `positional-arg-name:"FILE" description:"Saved payload, or - for stdin" required:"yes"`
}

// NormalizeCommand dry-runs the normalizer against a saved payload.
type NormalizeCommand struct {
	Metric string      `long:"metric" short:"m" description:"Metric type of the payload (views or visitors)" required:"true"`
	Args   payloadArgs `positional-args:"yes"`

	globals *GlobalFlags
	out     io.Writer
}

// IngestCommand normalizes a saved payload and merges it into storage.
type IngestCommand struct {
	Metric string      `long:"metric" short:"m" description:"Metric type of the payload (views or visitors)" required:"true"`
	Args   payloadArgs `positional-args:"yes"`

	globals *GlobalFlags
	out     io.Writer
	db      *gorm.DB // injectable for testing; nil means open from flags
}

// RecentCommand prints the most recent records.
type RecentCommand struct {
	Limit int `long:"limit" short:"n" description:"Number of days" default:"30"`

	globals *GlobalFlags
	out     io.Writer
	db      *gorm.DB
}

// AnalyzeCommand requests a narrative for the most recent records.
type AnalyzeCommand struct {
	Limit int `long:"limit" short:"n" description:"Number of days" default:"30"`

	globals   *GlobalFlags
	out       io.Writer
	db        *gorm.DB
	generator service.TextGenerator // injectable for testing; nil means build from environment
}

// Execute implements the go-flags Commander interface for NormalizeCommand.
func (c *NormalizeCommand) Execute([]string) error {
	metric, raw, err := readPayload(c.Metric, c.Args.File)
	if err != nil {
		return err
	}

	result := stats.Normalize(metric, raw)
	if c.globals.JSON {
		return writeJSON(c.out, normalizeOutput(result))
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tMETRIC\tCOUNT")
	for _, fact := range result.Facts {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", fact.Date, fact.Metric, fact.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, reason := range result.Reasons {
		fmt.Fprintf(c.out, "skipped entry %d: %s\n", reason.Index, reason.Reason)
	}
	fmt.Fprintf(c.out, "%d facts, %d skipped\n", len(result.Facts), result.Skipped)
	return nil
}

// Execute implements the go-flags Commander interface for IngestCommand.
func (c *IngestCommand) Execute([]string) error {
	metric, raw, err := readPayload(c.Metric, c.Args.File)
	if err != nil {
		return err
	}

	gdb, err := openDB(c.db, c.globals)
	if err != nil {
		return err
	}

	result := service.NewStatsService(gdb).IngestPayload(context.Background(), metric, raw)
	if c.globals.JSON {
		if err := writeJSON(c.out, map[string]any{
			"written":     len(result.Dates),
			"dates":       result.Dates,
			"skipped":     result.Skipped,
			"failedDates": result.FailedDates(),
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(c.out, "written %d dates, skipped %d entries\n", len(result.Dates), result.Skipped)
		for _, date := range result.Dates {
			fmt.Fprintf(c.out, "  %s\n", date)
		}
	}
	return result.Err()
}

// Execute implements the go-flags Commander interface for RecentCommand.
func (c *RecentCommand) Execute([]string) error {
	gdb, err := openDB(c.db, c.globals)
	if err != nil {
		return err
	}

	series, summary, err := service.NewStatsService(gdb).Summary(context.Background(), c.Limit)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}

	if c.globals.JSON {
		return writeJSON(c.out, map[string]any{"series": recordOutput(series), "summary": summary})
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DATE\tVIEWS\tVISITORS\t")
	for _, record := range series {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", record.Date, formatCount(record.Views), formatCount(record.Visitors))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d days, %d views, %d visitors\n", summary.Days, summary.TotalViews, summary.TotalVisitors)
	return nil
}

// Execute implements the go-flags Commander interface for AnalyzeCommand.
func (c *AnalyzeCommand) Execute([]string) error {
	gdb, err := openDB(c.db, c.globals)
	if err != nil {
		return err
	}

	cfg := config.Load()
	generator := c.generator
	if generator == nil {
		generator = service.NewAIChatClient(service.AIClientOptions{
			Provider: cfg.AIProvider,
			APIKey:   cfg.AIAPIKey,
			Model:    cfg.AIModel,
			BaseURL:  cfg.AIBaseURL,
		})
	}

	ctx := context.Background()
	series, err := service.NewStatsService(gdb).RecentStats(ctx, c.Limit)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}

	result := service.NewNarrativeService(generator).WithTimeout(cfg.AITimeout).RequestNarrative(ctx, series)
	if c.globals.JSON {
		return writeJSON(c.out, map[string]any{
			"narrativeText": result.Text,
			"series":        recordOutput(series),
			"degraded":      result.Degraded,
		})
	}
	fmt.Fprintln(c.out, result.Text)
	return nil
}

func readPayload(rawMetric, path string) (stats.Metric, []byte, error) {
	metric, ok := stats.ParseMetric(rawMetric)
	if !ok {
		return "", nil, fmt.Errorf("unknown metric %q (want views or visitors)", rawMetric)
	}

	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading payload: %w", err)
	}
	return metric, raw, nil
}

func openDB(injected *gorm.DB, globals *GlobalFlags) (*gorm.DB, error) {
	if injected != nil {
		return injected, nil
	}
	if globals.DatabaseURL == "" {
		return nil, errDatabaseURLRequired
	}
	gdb, err := db.Open(globals.DatabaseURL, globals.DatabasePassword)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return gdb, nil
}

type factOutput struct {
	Date   string          `json:"date"`
	Metric string          `json:"metric"`
	Count  int64           `json:"count"`
	Source json.RawMessage `json:"source,omitempty"`
}

type recordJSON struct {
	Date     string `json:"date"`
	Views    *int64 `json:"views"`
	Visitors *int64 `json:"visitors"`
}

func normalizeOutput(result stats.NormalizeResult) map[string]any {
	facts := make([]factOutput, len(result.Facts))
	for i, fact := range result.Facts {
		facts[i] = factOutput{Date: fact.Date, Metric: fact.Metric.String(), Count: fact.Count, Source: fact.Source}
	}
	reasons := make([]map[string]any, len(result.Reasons))
	for i, reason := range result.Reasons {
		reasons[i] = map[string]any{"index": reason.Index, "reason": reason.Reason}
	}
	return map[string]any{
		"facts":   facts,
		"skipped": result.Skipped,
		"reasons": reasons,
		"batch":   result.Batch,
	}
}

func recordOutput(series []stats.Record) []recordJSON {
	out := make([]recordJSON, len(series))
	for i, record := range series {
		out[i] = recordJSON{Date: record.Date, Views: record.Views, Visitors: record.Visitors}
	}
	return out
}

func formatCount(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
