package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/raphaelgruber/loglens/internal/metrics"
	"github.com/raphaelgruber/loglens/internal/models"
)

// ProfileResult is the signed-in user's profile.
type ProfileResult struct {
	Profile models.Profile
	// Conversations is how many saved conversations the user has.
	Conversations int
}

// GetProfile returns the profile of the user the token belongs to.
func (c *Client) GetProfile(ctx context.Context) (*ProfileResult, error) {
	var result struct {
		Profile       *models.Profile   `json:"profile"`
		Conversations []json.RawMessage `json:"conversations"`
	}
	err := c.do(ctx, request{
		op:     metrics.OpGetProfile,
		method: http.MethodGet,
		path:   "/profile/me",
		retry:  true,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Profile == nil {
		return nil, &ServiceError{Op: metrics.OpGetProfile, StatusCode: http.StatusOK, Message: "response has no profile"}
	}
	return &ProfileResult{Profile: *result.Profile, Conversations: len(result.Conversations)}, nil
}

// UpdateProfile changes the set fields of the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	if update.Empty() {
		return fmt.Errorf("%s: nothing to update", metrics.OpUpdateProfile)
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", metrics.OpUpdateProfile, err)
	}
	return c.do(ctx, request{
		op:          metrics.OpUpdateProfile,
		method:      http.MethodPatch,
		path:        "/profile/me",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		retry:       true,
	}, nil)
}

// Download copies the stored file at path (a record's raw or processed
// file path) to w and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	if path == "" {
		return 0, fmt.Errorf("%s: empty path", metrics.OpDownload)
	}

	cw := &countingWriter{w: w}
	err := c.do(ctx, request{
		op:     metrics.OpDownload,
		method: http.MethodGet,
		path:   "/download",
		query:  url.Values{"path": {path}},
		retry:  true,
		sink:   cw,
	}, nil)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
