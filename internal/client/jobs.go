package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/raphaelgruber/loglens/internal/metrics"
	"github.com/raphaelgruber/loglens/internal/models"
)

// uploadResponse is the service's acknowledgement of an accepted upload.
type uploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

// Upload streams the candidate's file to the service together with its
// context and visibility, and returns the id of the processing job.
// Uploads are never retried.
func (c *Client) Upload(ctx context.Context, candidate models.UploadCandidate) (string, error) {
	f, err := candidate.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", candidate.Path, err)
	}
	defer f.Close()

	visibility := candidate.Visibility
	if visibility == "" {
		visibility = models.DefaultVisibility
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, candidate, visibility))
	}()
	defer pr.Close()

	var resp uploadResponse
	err = c.do(ctx, request{
		op:          metrics.OpUpload,
		method:      http.MethodPost,
		path:        "/records",
		body:        pr,
		contentType: mw.FormDataContentType(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &ServiceError{Op: metrics.OpUpload, StatusCode: http.StatusAccepted, Message: "response has no job_id"}
	}

	c.logger.Info("upload accepted", "job_id", resp.JobID, "file", candidate.Name, "size", candidate.Size)
	return resp.JobID, nil
}

// writeUploadForm writes the multipart body: file, context, visibility.
func writeUploadForm(mw *multipart.Writer, f io.Reader, candidate models.UploadCandidate, visibility models.Visibility) error {
	part, err := mw.CreateFormFile("file", candidate.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.WriteField("context", candidate.Context); err != nil {
		return err
	}
	if err := mw.WriteField("visibility", string(visibility)); err != nil {
		return err
	}
	return mw.Close()
}

// PollJob fetches the current state of a job. It has no side effects and
// is safe to call repeatedly.
func (c *Client) PollJob(ctx context.Context, jobID string) (*models.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%s: empty job id", metrics.OpPollJob)
	}

	var job models.Job
	err := c.do(ctx, request{
		op:     metrics.OpPollJob,
		method: http.MethodGet,
		path:   "/jobs/" + url.PathEscape(jobID),
		retry:  true,
	}, &job)
	if err != nil {
		return nil, err
	}

	if job.ID == "" {
		job.ID = jobID
	}
	job.Status = models.ParseJobStatus(string(job.Status))
	return &job, nil
}
