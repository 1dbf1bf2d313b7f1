package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Score is a raw similarity score as reported by the similarity service.
// Depending on the source it is a fraction in [0,1] or a percentage in [0,100].
// Values that are not numeric decode as an invalid score rather than failing
// the whole response.
type Score struct {
	Value float64
	Valid bool
}

// NewScore returns a valid score.
func NewScore(v float64) Score {
	return Score{Value: v, Valid: true}
}

// UnmarshalJSON accepts numbers and numeric strings.
func (s *Score) UnmarshalJSON(b []byte) error {
	*s = Score{}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		*s = NewScore(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*s = NewScore(f)
		}
	}
	return nil
}

// MarshalJSON writes the numeric value, or null for an invalid score.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// SimilarityCandidate is one scored match returned for a record.
type SimilarityCandidate struct {
	RecordID       string     `json:"record_id"`
	Score          Score      `json:"similarity_score"`
	IsPrimaryMatch bool       `json:"is_primary_match,omitempty"`
	Title          string     `json:"title,omitempty"`
	Context        string     `json:"context,omitempty"`
	Visibility     Visibility `json:"visibility,omitempty"`
	CreatedAt      Timestamp  `json:"created_at,omitzero"`
}

// UnmarshalJSON also accepts the short "id" and "score" keys some service
// versions emit.
func (c *SimilarityCandidate) UnmarshalJSON(b []byte) error {
	type plain SimilarityCandidate
	var aux struct {
		plain
		ID       string `json:"id"`
		RawScore *Score `json:"score"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	*c = SimilarityCandidate(aux.plain)
	if c.RecordID == "" {
		c.RecordID = aux.ID
	}
	if !c.Score.Valid && aux.RawScore != nil {
		c.Score = *aux.RawScore
	}
	return nil
}

// PrimaryMatch is the record's previously established top match. It comes
// from the origin record, not from a similarity fetch.
type PrimaryMatch struct {
	RecordID   string  `json:"record_id"`
	Percentage float64 `json:"percentage"`
}
