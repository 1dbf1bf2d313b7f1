package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   time.Time
		wantOK bool
	}{
		{"rfc3339", "2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"rfc3339 nano with offset", "2024-05-01T12:00:00.5+02:00", time.Date(2024, 5, 1, 10, 0, 0, 5e8, time.UTC), true},
		{"zoneless micros", "2024-05-01T10:00:00.123456", time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), true},
		{"zoneless seconds", "2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"space separated", "2024-05-01 10:00:00.5", time.Date(2024, 5, 1, 10, 0, 0, 5e8, time.UTC), true},
		{"date only", "2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), true},
		{"garbage", "yesterday", time.Time{}, false},
		{"empty", "  ", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got.Time), "got %s", got.Time)
		})
	}
}

func TestTimestampUnmarshalNeverFails(t *testing.T) {
	for _, body := range []string{`null`, `"not a date"`, `1714557600`, `{}`} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(body), &ts), body)
		assert.True(t, ts.IsZero(), body)
	}
}

func TestTimestampMarshal(t *testing.T) {
	b, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	ts := NewTimestamp(time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC))
	b, err = json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T10:00:00.123456Z"`, string(b))

	var back Timestamp
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, ts.Equal(back.Time))
}

func TestZonelessTimestampsInResponses(t *testing.T) {
	var job Job
	body := `{"job_id":"j1","status":"completed","progress":100,"record_id":"r9",
		"created_at":"2024-05-01T10:00:00.123456","finished_at":"2024-05-01T10:00:30.000001"}`
	require.NoError(t, json.Unmarshal([]byte(body), &job))
	assert.Equal(t, "r9", job.RecordID)
	assert.Equal(t, 30*time.Second-123455*time.Microsecond, job.FinishedAt.Sub(job.CreatedAt.Time))

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":"r9","created_at":"2024-05-01T10:00:00.123456"}`), &rec))
	assert.Equal(t, 2024, rec.CreatedAt.Year())

	var cand SimilarityCandidate
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","score":0.9,"created_at":"2024-05-01T10:00:00"}`), &cand))
	assert.Equal(t, "a", cand.RecordID)
	assert.False(t, cand.CreatedAt.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"r1","created_at":"last tuesday"}`), &rec))
	assert.Equal(t, "r1", rec.ID, "an unreadable timestamp does not fail the record")
	assert.True(t, rec.CreatedAt.IsZero())
}
