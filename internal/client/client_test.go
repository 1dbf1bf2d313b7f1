package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/raphaelgruber/loglens/internal/client"
	"github.com/raphaelgruber/loglens/internal/httputil"
	"github.com/raphaelgruber/loglens/internal/metrics"
	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const testToken = "secret-token"

// testLogger discards output unless the test fails verbosely.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient starts a fake service routed by router and returns a client for it.
func newTestClient(t *testing.T, router *mux.Router, collector *metrics.Collector) *client.Client {
	t.Helper()
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return client.New(client.Config{
		BaseURL:    ts.URL + "/",
		Token:      testToken,
		MaxRetries: 2,
	}, client.WithHTTPClient(ts.Client()), client.WithLogger(testLogger()), client.WithMetrics(collector))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeLogFile(t *testing.T) models.UploadCandidate {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.log")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01 ERROR db timeout\n"), 0o644))
	c, err := models.NewUploadCandidate(path, "seen after deploy", models.VisibilityTeam)
	require.NoError(t, err)
	return c
}

func TestUpload(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err, "every request carries a uuid request id")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "seen after deploy", r.FormValue("context"))
		assert.Equal(t, "team", r.FormValue("visibility"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "service.log", hdr.Filename)
		content, _ := io.ReadAll(f)
		assert.Equal(t, "2024-01-01 ERROR db timeout\n", string(content))

		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": "j1", "message": "File uploaded, processing started"})
	}).Methods(http.MethodPost)

	collector := metrics.NewCollector()
	c := newTestClient(t, router, collector)

	jobID, err := c.Upload(context.Background(), writeLogFile(t))
	require.NoError(t, err)
	assert.Equal(t, "j1", jobID)

	snap, ok := collector.Snapshot().Get(metrics.OpUpload)
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.Count)
}

func TestUploadRejected(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file selected"})
	}).Methods(http.MethodPost)

	c := newTestClient(t, router, nil)

	_, err := c.Upload(context.Background(), writeLogFile(t))
	require.Error(t, err)
	assert.True(t, client.IsService(err))
	assert.False(t, client.IsNetwork(err))
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))
	assert.Contains(t, err.Error(), "No file selected")
}

func TestUploadMissingJobID(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "ok"})
	}).Methods(http.MethodPost)

	c := newTestClient(t, router, nil)

	_, err := c.Upload(context.Background(), writeLogFile(t))
	assert.True(t, client.IsService(err))
}

func TestPollJob(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["id"] {
		case "j1":
			writeJSON(w, http.StatusOK, map[string]any{"status": "running", "progress": 30})
		case "j2":
			writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "progress": 100, "record_id": "r9"})
		case "j3":
			writeJSON(w, http.StatusOK, map[string]any{
				"status":      "completed",
				"progress":    100,
				"record_id":   "r9",
				"created_at":  "2024-05-01T10:00:00.123456",
				"finished_at": "2024-05-01T10:00:42.123456",
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
		}
	}).Methods(http.MethodGet)

	c := newTestClient(t, router, nil)
	ctx := context.Background()

	job, err := c.PollJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID, "job id is filled from the request")
	assert.Equal(t, models.JobStatusProcessing, job.Status, "running is normalized to processing")
	assert.Equal(t, 30.0, job.Progress)

	job, err = c.PollJob(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "r9", job.RecordID)

	job, err = c.PollJob(ctx, "j3")
	require.NoError(t, err, "timestamps without a UTC offset are accepted")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "r9", job.RecordID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), job.CreatedAt.Time)
	assert.Equal(t, 42*time.Second, job.FinishedAt.Sub(job.CreatedAt.Time))

	_, err = c.PollJob(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
	assert.Contains(t, err.Error(), "Job not found")

	_, err = c.PollJob(ctx, "")
	assert.Error(t, err)
}

func TestPollJobRetriesUnavailable(t *testing.T) {
	var calls int32
	router := mux.NewRouter()
	router.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "progress": 0})
	})

	c := newTestClient(t, router, nil)

	job, err := c.PollJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPollJobMalformedBody(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})

	c := newTestClient(t, router, nil)

	_, err := c.PollJob(context.Background(), "j1")
	require.Error(t, err)
	assert.True(t, client.IsService(err), "malformed bodies are service errors")
}

func TestNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	collector := metrics.NewCollector()
	c := client.New(client.Config{BaseURL: url, MaxRetries: -1},
		client.WithLogger(testLogger()), client.WithMetrics(collector))

	_, err := c.PollJob(context.Background(), "j1")
	require.Error(t, err)
	assert.True(t, client.IsNetwork(err))
	assert.False(t, client.IsService(err))

	snap, ok := collector.Snapshot().Get(metrics.OpPollJob)
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.Errors)
}

func TestFetchSimilar(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/records/{id}/similar", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "r9", mux.Vars(r)["id"])
		assert.Equal(t, "0.8", r.URL.Query().Get("min"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{
			"similar_records": []map[string]any{
				{"record_id": "a", "similarity_score": 0.92},
				{"id": "b", "score": 95},
				{"record_id": "c", "similarity_score": 0.5},
			},
		})
	}).Methods(http.MethodGet)

	c := newTestClient(t, router, nil)

	got, err := c.FetchSimilar(context.Background(), "r9", client.SimilarOptions{MinScore: 0.8, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 3, "an over-returning server is not cut by position")
	assert.Equal(t, "a", got[0].RecordID)
	assert.Equal(t, "b", got[1].RecordID)
	assert.Equal(t, models.NewScore(95), got[1].Score)

	ranked := ranking.Rank(got, 80, nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].RecordID, "the best match survives even when sent last of the limit")
}

func TestPatchMetadata(t *testing.T) {
	var got map[string]any
	var path string
	router := mux.NewRouter()
	router.HandleFunc("/records/{id}/{field}", func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		got = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]string{"message": "updated"})
	}).Methods(http.MethodPatch)

	c := newTestClient(t, router, nil)
	ctx := context.Background()

	require.NoError(t, c.PatchMetadata(ctx, "r9", models.FieldVisibility, "private"))
	assert.Equal(t, "/records/r9/visibility", path)
	assert.Equal(t, map[string]any{"visibility": "self"}, got)

	require.NoError(t, c.PatchMetadata(ctx, "r9", models.FieldTags, []string{"OOM", "oom", "Disk Full"}))
	assert.Equal(t, "/records/r9/tags", path)
	assert.Equal(t, map[string]any{"tags": []any{"oom", "disk-full"}}, got)

	require.NoError(t, c.PatchMetadata(ctx, "r9", models.FieldDevFeedback, "root cause: pool exhaustion"))
	assert.Equal(t, map[string]any{"dev_feedback": "root cause: pool exhaustion"}, got)

	assert.Error(t, c.PatchMetadata(ctx, "r9", models.FieldVisibility, "everyone"))
	assert.Error(t, c.PatchMetadata(ctx, "r9", models.MetadataField("owner"), "me"))
	assert.Error(t, c.PatchMetadata(ctx, "", models.FieldContext, "x"))
}

func TestDeleteTag(t *testing.T) {
	var deleted string
	router := mux.NewRouter()
	router.HandleFunc("/records/{id}/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		deleted = mux.Vars(r)["tag"]
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	c := newTestClient(t, router, nil)

	require.NoError(t, c.DeleteTag(context.Background(), "r9", "oom"))
	assert.Equal(t, "oom", deleted)
}

func TestGetAndListRecords(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"record_id":     "r9",
			"filename":      "service.log",
			"visibility":    "team",
			"tags":          []string{"oom"},
			"primary_match": map[string]any{"record_id": "x", "percentage": 88},
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "team", r.URL.Query().Get("visibility"))
		assert.Equal(t, "oom", r.URL.Query().Get("tag"))
		writeJSON(w, http.StatusOK, map[string]any{
			"records": []map[string]any{{"record_id": "r9"}, {"record_id": "r10"}},
		})
	}).Methods(http.MethodGet)

	c := newTestClient(t, router, nil)
	ctx := context.Background()

	rec, err := c.GetRecord(ctx, "r9")
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityTeam, rec.Visibility)
	require.NotNil(t, rec.PrimaryMatch)
	assert.Equal(t, "x", rec.PrimaryMatch.RecordID)
	assert.Equal(t, 88.0, rec.PrimaryMatch.Percentage)

	recs, err := c.ListRecords(ctx, client.ListRecordsOptions{Visibility: "team", Tag: "oom"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestLogin(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["userid"] != "alice" || body["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok", "user_id": "alice", "team_id": "sre"})
	}).Methods(http.MethodPost)

	c := newTestClient(t, router, nil)
	ctx := context.Background()

	res, err := c.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "sre", res.TeamID)

	_, err = c.Login(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestSignup(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["userid"] == "taken" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "User already exists"})
			return
		}
		assert.Equal(t, "sre", body["teamid"])
		writeJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully", "user_id": body["userid"]})
	}).Methods(http.MethodPost)

	c := newTestClient(t, router, nil)
	ctx := context.Background()

	id, err := c.Signup(ctx, "alice", "pw", "sre")
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = c.Signup(ctx, "taken", "pw", "sre")
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))
	assert.Contains(t, err.Error(), "User already exists")

	_, err = c.Signup(ctx, "bob", "pw", "")
	assert.Error(t, err, "team is required")
}

func TestProfile(t *testing.T) {
	var patched map[string]any
	router := mux.NewRouter()
	router.HandleFunc("/profile/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"profile": map[string]any{
				"user_id":    "alice",
				"team_id":    "sre",
				"email":      "alice@example.com",
				"created_at": "2024-05-01T10:00:00.123456",
			},
			"conversations": []map[string]any{{"id": "c1"}, {"id": "c2"}},
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/profile/me", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
	}).Methods(http.MethodPatch)

	c := newTestClient(t, router, nil)
	ctx := context.Background()

	res, err := c.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Profile.UserID)
	assert.Equal(t, "sre", res.Profile.TeamID)
	assert.Equal(t, 2024, res.Profile.CreatedAt.Year())
	assert.Equal(t, 2, res.Conversations)

	name := "Alice"
	require.NoError(t, c.UpdateProfile(ctx, models.ProfileUpdate{DisplayName: &name}))
	assert.Equal(t, map[string]any{"display_name": "Alice"}, patched, "unset fields are not sent")

	assert.Error(t, c.UpdateProfile(ctx, models.ProfileUpdate{}))
}

func TestDownload(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("path") {
		case "processed/r9.log":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("ERROR db timeout\n"))
		case "/etc/passwd":
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Access denied"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		}
	}).Methods(http.MethodGet)

	collector := metrics.NewCollector()
	c := newTestClient(t, router, collector)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, "processed/r9.log", &buf)
	require.NoError(t, err)
	assert.Equal(t, "ERROR db timeout\n", buf.String(), "the body is copied as is")
	assert.Equal(t, int64(buf.Len()), n)

	buf.Reset()
	_, err = c.Download(ctx, "/etc/passwd", &buf)
	assert.Equal(t, http.StatusForbidden, client.StatusCode(err))
	assert.Contains(t, err.Error(), "Access denied")
	assert.Zero(t, buf.Len(), "error bodies are not written to the destination")

	_, err = c.Download(ctx, "missing", &buf)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))

	snap, ok := collector.Snapshot().Get(metrics.OpDownload)
	require.True(t, ok)
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, int64(2), snap.Errors)
}
