package devserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/loglens/internal/client"
	"github.com/raphaelgruber/loglens/internal/devserver"
	"github.com/raphaelgruber/loglens/internal/httputil"
	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/ranking"
	"github.com/raphaelgruber/loglens/internal/tracker"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const testToken = "dev-token"

const dbTimeoutLog = `2024-05-01T10:00:00Z ERROR database connection timeout after 30s
2024-05-01T10:00:01Z ERROR pool exhausted waiting for connection
2024-05-01T10:00:02Z INFO retrying request
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg devserver.Config) (*devserver.Server, *client.Client) {
	t.Helper()
	if cfg.Token == "" {
		cfg.Token = testToken
	}
	srv := devserver.New(cfg, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := client.New(client.Config{
		BaseURL:    ts.URL,
		Token:      cfg.Token,
		MaxRetries: 3,
	}, client.WithHTTPClient(ts.Client()), client.WithLogger(testLogger()))
	return srv, c
}

func writeLog(t *testing.T, content string) models.UploadCandidate {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cand, err := models.NewUploadCandidate(path, "after deploy", models.VisibilityTeam)
	require.NoError(t, err)
	return cand
}

func trackToEnd(t *testing.T, c *client.Client, cand models.UploadCandidate) tracker.Snapshot {
	t.Helper()
	tr := tracker.New(c, tracker.Config{
		PollInterval: time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
		Logger:       testLogger(),
	})
	t.Cleanup(tr.Close)

	require.NoError(t, tr.SelectFile(cand))
	_, err := tr.Submit(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tr.Snapshot().Terminal()
	}, 5*time.Second, time.Millisecond)
	return tr.Snapshot()
}

func TestUploadTrackAndRank(t *testing.T) {
	srv, c := newTestServer(t, devserver.Config{Step: 50})
	seeded := srv.Seed("earlier.log", dbTimeoutLog+"ERROR replica lag\n", models.VisibilityPublic)
	srv.Seed("unrelated.log", "INFO user signed in\nINFO cache warmed\n", models.VisibilityPublic)

	snap := trackToEnd(t, c, writeLog(t, dbTimeoutLog))
	require.Equal(t, tracker.Completed, snap.State)
	require.NotEmpty(t, snap.Job.RecordID)
	assert.Equal(t, 3, snap.Polls, "pending, running at 50, completed")
	assert.False(t, snap.Job.CreatedAt.IsZero(), "zoneless created_at is decoded")
	assert.False(t, snap.Job.FinishedAt.Before(snap.Job.CreatedAt.Time))

	rec, err := c.GetRecord(context.Background(), snap.Job.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "app.log", rec.Filename)
	assert.Equal(t, "after deploy", rec.Context)
	assert.Equal(t, models.VisibilityTeam, rec.Visibility)
	assert.Equal(t, "3 lines, 2 error lines", rec.Summary)
	require.NotNil(t, rec.PrimaryMatch)
	assert.Equal(t, seeded.ID, rec.PrimaryMatch.RecordID)

	similar, err := c.FetchSimilar(context.Background(), rec.ID, client.SimilarOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, similar)
	assert.Equal(t, seeded.ID, similar[0].RecordID)
	assert.True(t, similar[0].IsPrimaryMatch)

	ranked := ranking.Rank(similar, 0, rec.PrimaryMatch)
	require.NotEmpty(t, ranked)
	assert.Equal(t, seeded.ID, ranked[0].RecordID)
	assert.True(t, ranked[0].IsPrimary)
	assert.InDelta(t, rec.PrimaryMatch.Percentage, ranked[0].Percentage, 0.1)
}

func TestJobFailure(t *testing.T) {
	_, c := newTestServer(t, devserver.Config{Step: 100})

	snap := trackToEnd(t, c, writeLog(t, "ERROR "+devserver.FailMarker+"\n"))
	require.Equal(t, tracker.Failed, snap.State)

	var jobErr *tracker.JobFailedError
	require.True(t, errors.As(snap.LastError, &jobErr))
	assert.Contains(t, jobErr.Message, devserver.FailMarker)
}

func TestUnavailablePollsAreRetried(t *testing.T) {
	srv, c := newTestServer(t, devserver.Config{Step: 100, UnavailableEvery: 2})

	snap := trackToEnd(t, c, writeLog(t, dbTimeoutLog))
	assert.Equal(t, tracker.Completed, snap.State)

	jobs := srv.Jobs().ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, devserver.JobStatusCompleted, jobs[0].Status)
}

func TestJobTimestampsHaveNoOffset(t *testing.T) {
	srv, c := newTestServer(t, devserver.Config{Step: 100})
	jobID, err := c.Upload(context.Background(), writeLog(t, dbTimeoutLog))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	created, ok := body["created_at"].(string)
	require.True(t, ok)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}$`, created)
	assert.Nil(t, body["finished_at"], "pending jobs have no finish time")
}

func TestUnknownJob(t *testing.T) {
	_, c := newTestServer(t, devserver.Config{})

	_, err := c.PollJob(context.Background(), "missing")
	require.Error(t, err)
	var se *client.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "Job not found", se.Message)
}

func TestRequiresToken(t *testing.T) {
	_, c := newTestServer(t, devserver.Config{})
	c.SetToken("wrong")

	_, err := c.ListRecords(context.Background(), client.ListRecordsOptions{})
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
}

func TestMetadataAndTags(t *testing.T) {
	srv, c := newTestServer(t, devserver.Config{})
	rec := srv.Seed("a.log", dbTimeoutLog, models.VisibilitySelf)
	ctx := context.Background()

	require.NoError(t, c.PatchMetadata(ctx, rec.ID, models.FieldTags, []string{"OOM", "disk full", "oom"}))
	require.NoError(t, c.PatchMetadata(ctx, rec.ID, models.FieldVisibility, "public"))
	require.NoError(t, c.PatchMetadata(ctx, rec.ID, models.FieldDevFeedback, "fixed by raising pool size"))
	require.NoError(t, c.PatchMetadata(ctx, rec.ID, models.FieldThresholds, map[string]float64{"error_rate": 0.05}))

	got, err := c.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"oom", "disk-full"}, got.Tags)
	assert.Equal(t, models.VisibilityPublic, got.Visibility)
	assert.Equal(t, "fixed by raising pool size", got.DevFeedback)

	require.NoError(t, c.DeleteTag(ctx, rec.ID, "oom"))
	require.NoError(t, c.DeleteTag(ctx, rec.ID, "oom"), "removing an absent tag is not an error")

	byTag, err := c.ListRecords(ctx, client.ListRecordsOptions{Tag: "disk-full"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, []string{"disk-full"}, byTag[0].Tags)

	private, err := c.ListRecords(ctx, client.ListRecordsOptions{Visibility: "self"})
	require.NoError(t, err)
	assert.Empty(t, private)

	err = c.DeleteTag(ctx, "missing", "oom")
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
}

func TestSimilarFloorAndLimit(t *testing.T) {
	srv, c := newTestServer(t, devserver.Config{})
	origin := srv.Seed("origin.log", "alpha beta gamma delta", "")
	close1 := srv.Seed("close.log", "alpha beta gamma epsilon", "")
	srv.Seed("far.log", "alpha zeta eta theta", "")
	srv.Seed("none.log", "omega", "")
	ctx := context.Background()

	all, err := c.FetchSimilar(ctx, origin.ID, client.SimilarOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2, "records with nothing in common are not returned")
	assert.Equal(t, close1.ID, all[0].RecordID)
	assert.InDelta(t, 0.6, all[0].Score.Value, 1e-9)
	assert.InDelta(t, 1.0/7, all[1].Score.Value, 1e-4)

	floored, err := c.FetchSimilar(ctx, origin.ID, client.SimilarOptions{MinScore: 0.5})
	require.NoError(t, err)
	assert.Len(t, floored, 1)

	limited, err := c.FetchSimilar(ctx, origin.ID, client.SimilarOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, close1.ID, limited[0].RecordID)
}

func TestLogin(t *testing.T) {
	_, c := newTestServer(t, devserver.Config{Users: map[string]string{"dev": "pw"}})
	ctx := context.Background()

	res, err := c.Login(ctx, "dev", "pw")
	require.NoError(t, err)
	assert.Equal(t, testToken, res.Token)
	assert.Equal(t, "dev", res.UserID)

	_, err = c.Login(ctx, "dev", "nope")
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := devserver.New(devserver.Config{}, logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "path=/health")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "request_id=req-1")
}

func TestSignupAndProfile(t *testing.T) {
	_, c := newTestServer(t, devserver.Config{})
	ctx := context.Background()

	_, err := c.GetProfile(ctx)
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err), "no one has logged in with the token yet")

	id, err := c.Signup(ctx, "alice", "pw", "sre")
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = c.Signup(ctx, "alice", "other", "sre")
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))

	res, err := c.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "sre", res.TeamID)

	email := "alice@example.com"
	team := "payments"
	require.NoError(t, c.UpdateProfile(ctx, models.ProfileUpdate{Email: &email, TeamID: &team}))

	bad := "not-an-email"
	err = c.UpdateProfile(ctx, models.ProfileUpdate{Email: &bad})
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))

	profile, err := c.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Profile.UserID)
	assert.Equal(t, "payments", profile.Profile.TeamID)
	assert.Equal(t, email, profile.Profile.Email)
	assert.False(t, profile.Profile.CreatedAt.IsZero())
	assert.Zero(t, profile.Conversations)
}

func TestDownload(t *testing.T) {
	srv, c := newTestServer(t, devserver.Config{})
	rec := srv.Seed("db.log", dbTimeoutLog, "")
	ctx := context.Background()

	got, err := c.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.RawFilePath)
	require.NotEmpty(t, got.ProcessedPath)

	var raw bytes.Buffer
	_, err = c.Download(ctx, got.RawFilePath, &raw)
	require.NoError(t, err)
	assert.Equal(t, dbTimeoutLog, raw.String())

	var processed bytes.Buffer
	_, err = c.Download(ctx, got.ProcessedPath, &processed)
	require.NoError(t, err)
	assert.Equal(t, "ERROR database connection timeout after 30s\n"+
		"ERROR pool exhausted waiting for connection\n"+
		"INFO retrying request\n", processed.String(), "timestamps are stripped")

	_, err = c.Download(ctx, "../etc/passwd", io.Discard)
	assert.Equal(t, http.StatusForbidden, client.StatusCode(err))

	_, err = c.Download(ctx, "uploads/missing.log", io.Discard)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
}
