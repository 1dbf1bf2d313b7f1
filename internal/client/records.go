package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/raphaelgruber/loglens/internal/metrics"
	"github.com/raphaelgruber/loglens/internal/models"
)

// SimilarOptions bounds a similarity fetch.
type SimilarOptions struct {
	// MinScore is the similarity floor as a fraction in [0,1].
	MinScore float64
	// Limit is passed to the server; 0 means server default. Candidates
	// are returned as sent, since ranking needs every score to order them.
	Limit int
}

// FetchSimilar returns the scored candidates the service considers similar
// to recordID, in the order the service sent them.
func (c *Client) FetchSimilar(ctx context.Context, recordID string, opts SimilarOptions) ([]models.SimilarityCandidate, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%s: empty record id", metrics.OpFetchSimilar)
	}

	q := url.Values{}
	q.Set("min", strconv.FormatFloat(opts.MinScore, 'f', -1, 64))
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var result struct {
		SimilarRecords []models.SimilarityCandidate `json:"similar_records"`
	}
	err := c.do(ctx, request{
		op:     metrics.OpFetchSimilar,
		method: http.MethodGet,
		path:   "/records/" + url.PathEscape(recordID) + "/similar",
		query:  q,
		retry:  true,
	}, &result)
	if err != nil {
		return nil, err
	}

	return result.SimilarRecords, nil
}

// PatchMetadata sets one metadata field on a record. Setting the same value
// twice has the same effect as setting it once.
func (c *Client) PatchMetadata(ctx context.Context, recordID string, field models.MetadataField, value any) error {
	if recordID == "" {
		return fmt.Errorf("%s: empty record id", metrics.OpPatchMetadata)
	}
	if !field.Valid() {
		return fmt.Errorf("%s: unknown field %q", metrics.OpPatchMetadata, field)
	}

	switch field {
	case models.FieldVisibility:
		v, err := visibilityValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", metrics.OpPatchMetadata, err)
		}
		value = v
	case models.FieldTags:
		if tags, ok := value.([]string); ok {
			value = models.NormalizeTags(tags)
		}
	}

	payload, err := json.Marshal(map[string]any{string(field): value})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", metrics.OpPatchMetadata, err)
	}

	return c.do(ctx, request{
		op:          metrics.OpPatchMetadata,
		method:      http.MethodPatch,
		path:        "/records/" + url.PathEscape(recordID) + "/" + string(field),
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		retry:       true,
	}, nil)
}

// visibilityValue validates a visibility given as a Visibility or string.
func visibilityValue(value any) (models.Visibility, error) {
	switch v := value.(type) {
	case models.Visibility:
		return models.ParseVisibility(string(v))
	case string:
		return models.ParseVisibility(v)
	default:
		return "", fmt.Errorf("visibility must be a string, got %T", value)
	}
}

// DeleteTag removes one tag from a record.
func (c *Client) DeleteTag(ctx context.Context, recordID, tag string) error {
	if recordID == "" || tag == "" {
		return fmt.Errorf("%s: record id and tag are required", metrics.OpDeleteTag)
	}
	return c.do(ctx, request{
		op:     metrics.OpDeleteTag,
		method: http.MethodDelete,
		path:   "/records/" + url.PathEscape(recordID) + "/tags/" + url.PathEscape(tag),
		retry:  true,
	}, nil)
}

// GetRecord retrieves a record by id.
func (c *Client) GetRecord(ctx context.Context, recordID string) (*models.Record, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%s: empty record id", metrics.OpGetRecord)
	}

	var record models.Record
	err := c.do(ctx, request{
		op:     metrics.OpGetRecord,
		method: http.MethodGet,
		path:   "/records/" + url.PathEscape(recordID),
		retry:  true,
	}, &record)
	if err != nil {
		return nil, err
	}
	if record.ID == "" {
		record.ID = recordID
	}
	return &record, nil
}

// ListRecordsOptions filters ListRecords. Empty fields are not sent.
type ListRecordsOptions struct {
	// Visibility is self, team, public or "all".
	Visibility string
	Tag        string
}

// ListRecords returns the records visible to the current user.
func (c *Client) ListRecords(ctx context.Context, opts ListRecordsOptions) ([]models.Record, error) {
	q := url.Values{}
	if opts.Visibility != "" {
		q.Set("visibility", opts.Visibility)
	}
	if opts.Tag != "" {
		q.Set("tag", opts.Tag)
	}

	var result struct {
		Records []models.Record `json:"records"`
	}
	err := c.do(ctx, request{
		op:     metrics.OpListRecords,
		method: http.MethodGet,
		path:   "/records",
		query:  q,
		retry:  true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}
