package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityCandidateDecoding(t *testing.T) {
	body := `[
		{"record_id": "a", "similarity_score": 0.92},
		{"id": "b", "score": 95},
		{"record_id": "c", "similarity_score": "0.5"},
		{"record_id": "d", "similarity_score": "n/a"},
		{"record_id": "e", "similarity_score": null, "is_primary_match": true}
	]`

	var got []SimilarityCandidate
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 5)

	assert.Equal(t, "a", got[0].RecordID)
	assert.Equal(t, NewScore(0.92), got[0].Score)

	assert.Equal(t, "b", got[1].RecordID, "id alias should fill record_id")
	assert.Equal(t, NewScore(95), got[1].Score, "score alias should fill similarity_score")

	assert.Equal(t, NewScore(0.5), got[2].Score, "numeric strings are accepted")

	assert.False(t, got[3].Score.Valid, "non-numeric score decodes as invalid")
	assert.False(t, got[4].Score.Valid)
	assert.True(t, got[4].IsPrimaryMatch)
}

func TestScoreMarshal(t *testing.T) {
	b, err := json.Marshal(NewScore(0.8))
	require.NoError(t, err)
	assert.Equal(t, "0.8", string(b))

	b, err = json.Marshal(Score{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestJobDecoding(t *testing.T) {
	var job Job
	body := `{"job_id":"j1","status":"completed","progress":100,"record_id":"r9"}`
	require.NoError(t, json.Unmarshal([]byte(body), &job))
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, "r9", job.RecordID)
	assert.Equal(t, 100.0, job.ProgressPercent())

	job.Progress = 140
	assert.Equal(t, 100.0, job.ProgressPercent())
	job.Progress = -3
	assert.Equal(t, 0.0, job.ProgressPercent())
}

func TestNewUploadCandidate(t *testing.T) {
	dir := t.TempDir()

	logPath := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(logPath, []byte("ERROR boom\n"), 0o644))

	c, err := NewUploadCandidate(logPath, "after deploy", "")
	require.NoError(t, err)
	assert.Equal(t, "app.log", c.Name)
	assert.Equal(t, int64(11), c.Size)
	assert.Equal(t, VisibilitySelf, c.Visibility, "empty visibility falls back to the default")

	emptyPath := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o644))
	_, err = NewUploadCandidate(emptyPath, "", VisibilityTeam)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = NewUploadCandidate(dir, "", VisibilityTeam)
	assert.Error(t, err, "directories are rejected")

	_, err = NewUploadCandidate(filepath.Join(dir, "missing.log"), "", VisibilityTeam)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewUploadCandidate(logPath, "", Visibility("world"))
	assert.Error(t, err)
}
