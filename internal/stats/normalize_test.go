package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "compact", input: "20240115", want: "2024-01-15"},
		{name: "canonical", input: "2024-01-15", want: "2024-01-15"},
		{name: "padded", input: " 2024-01-15 ", want: "2024-01-15"},
		{name: "month name", input: "Jan-15", wantErr: true},
		{name: "impossible day", input: "20240230", wantErr: true},
		{name: "slashes", input: "2024/01/15", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "grouped", input: "12,345", want: 12345},
		{name: "plain", input: "12345", want: 12345},
		{name: "full width", input: "１２，３４５", want: 12345},
		{name: "zero", input: "0", want: 0},
		{name: "letters", input: "abc", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "blank", input: "  ", wantErr: true},
		{name: "overflow", input: "9223372036854775808", wantErr: true},
		{name: "decimal", input: "9223372036854775808.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeNaverBatch(t *testing.T) {
	payload := []byte(`{"result":{"stat":[
		{"date":"20240115","value":"1,234"},
		{"date":"2024-01-16","value":987}
	]}}`)

	result := Normalize(MetricViews, payload)

	require.Len(t, result.Facts, 2)
	assert.True(t, result.Batch)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, DailyFact{Date: "2024-01-15", Metric: MetricViews, Count: 1234, Source: json.RawMessage(`{"date":"20240115","value":"1,234"}`)}, result.Facts[0])
	assert.Equal(t, "2024-01-16", result.Facts[1].Date)
	assert.Equal(t, int64(987), result.Facts[1].Count)
}

func TestNormalizeBatchSkipsGarbageEntries(t *testing.T) {
	payload := []byte(`{"result":{"stat":[
		{"date":"2024-01-15","value":"42"},
		{"date":"Jan-15","value":"7"},
		{"date":"2024-01-17","value":"abc"},
		"not an object"
	]}}`)

	result := Normalize(MetricVisitors, payload)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Reasons, 3)
	assert.Equal(t, 1, result.Reasons[0].Index)
	assert.Equal(t, 2, result.Reasons[1].Index)
	assert.Equal(t, 3, result.Reasons[2].Index)
	assert.Equal(t, MetricVisitors, result.Facts[0].Metric)
	assert.Equal(t, int64(42), result.Facts[0].Count)
}

func TestNormalizeSingleDay(t *testing.T) {
	payload := []byte(`{"result":{"statDate":"20240115","pageViewCount":"3,210","visitorCount":1500}}`)

	views := Normalize(MetricViews, payload)
	require.Len(t, views.Facts, 1)
	assert.False(t, views.Batch)
	assert.Equal(t, int64(3210), views.Facts[0].Count)
	assert.JSONEq(t, string(payload), string(views.Facts[0].Source))

	visitors := Normalize(MetricVisitors, payload)
	require.Len(t, visitors.Facts, 1)
	assert.Equal(t, int64(1500), visitors.Facts[0].Count)
	assert.Equal(t, "2024-01-15", visitors.Facts[0].Date)
}

func TestNormalizeMetricAliasesTakePrecedenceOverGenericValue(t *testing.T) {
	payload := []byte(`{"date":"2024-03-01","uv":"55","value":"999"}`)

	result := Normalize(MetricVisitors, payload)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, int64(55), result.Facts[0].Count)
}

func TestNormalizeNestedSummary(t *testing.T) {
	payload := []byte(`{"summary":{"date":20240301,"pv":12}}`)

	result := Normalize(MetricViews, payload)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, "2024-03-01", result.Facts[0].Date)
	assert.Equal(t, int64(12), result.Facts[0].Count)
}

func TestNormalizeTopLevelList(t *testing.T) {
	payload := []byte(`{"data":[{"day":"2024-02-01","count":3},{"day":"2024-02-02","count":4}]}`)

	result := Normalize(MetricViews, payload)

	require.Len(t, result.Facts, 2)
	assert.True(t, result.Batch)
	assert.Equal(t, "2024-02-02", result.Facts[1].Date)
}

func TestNormalizeUnrecognizedShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "invalid json", payload: `{"result":`},
		{name: "scalar", payload: `42`},
		{name: "no date", payload: `{"result":{"value":"10"}}`},
		{name: "no count", payload: `{"result":{"date":"2024-01-01"}}`},
		{name: "fractional count", payload: `{"date":"2024-01-01","value":1.5}`},
		{name: "negative count", payload: `{"date":"2024-01-01","value":-3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(MetricViews, []byte(tt.payload))
			assert.Empty(t, result.Facts)
			assert.Equal(t, 1, result.Skipped)
		})
	}
}

func TestNormalizeRejectsCountsBeyondInt64(t *testing.T) {
	result := Normalize(MetricViews, json.RawMessage(`[{"date":"2024-01-15","pv":9223372036854775808.0},{"date":"2024-01-16","pv":7}]`))

	require.Len(t, result.Facts, 1)
	assert.Equal(t, "2024-01-16", result.Facts[0].Date)
	assert.Equal(t, int64(7), result.Facts[0].Count)
	assert.Equal(t, 1, result.Skipped)
	for _, fact := range result.Facts {
		assert.GreaterOrEqual(t, fact.Count, int64(0))
	}
}

func TestNormalizeEmptyBatch(t *testing.T) {
	result := Normalize(MetricViews, []byte(`{"result":{"stat":[]}}`))

	assert.Empty(t, result.Facts)
	assert.Zero(t, result.Skipped)
	assert.True(t, result.Batch)
}

func TestParseMetric(t *testing.T) {
	for _, raw := range []string{"views", "VIEWS", " pv "} {
		metric, ok := ParseMetric(raw)
		require.True(t, ok, raw)
		assert.Equal(t, MetricViews, metric)
	}
	for _, raw := range []string{"visitors", "Visitor", "uv"} {
		metric, ok := ParseMetric(raw)
		require.True(t, ok, raw)
		assert.Equal(t, MetricVisitors, metric)
	}
	_, ok := ParseMetric("likes")
	assert.False(t, ok)
}

func TestDecodeScalars(t *testing.T) {
	date, err := DecodeDate(json.RawMessage(`20240115`))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", date)

	_, err = DecodeDate(json.RawMessage(`null`))
	assert.Error(t, err)

	count, err := DecodeCount(json.RawMessage(`"12,345"`))
	require.NoError(t, err)
	assert.Equal(t, int64(12345), count)

	count, err = DecodeCount(json.RawMessage(`90`))
	require.NoError(t, err)
	assert.Equal(t, int64(90), count)

	count, err = DecodeCount(json.RawMessage(`1234.0`))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), count)

	for _, raw := range []string{`9223372036854775808.0`, `9.223372036854775808e18`, `1e19`, `-3.0`, `12.5`} {
		_, err = DecodeCount(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}

	_, err = DecodeCount(json.RawMessage(`{"n":1}`))
	assert.Error(t, err)
	_, err = DecodeCount(nil)
	assert.Error(t, err)
}
