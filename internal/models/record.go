package models

// Record is a processed log upload as stored by the service.
type Record struct {
	ID               string                `json:"record_id"`
	Filename         string                `json:"filename,omitempty"`
	Context          string                `json:"context,omitempty"`
	Visibility       Visibility            `json:"visibility,omitempty"`
	Tags             []string              `json:"tags,omitempty"`
	DevFeedback      string                `json:"dev_feedback,omitempty"`
	Summary          string                `json:"summary,omitempty"`
	ProcessedContent string                `json:"processed_content,omitempty"`
	RawFilePath      string                `json:"raw_file_path,omitempty"`
	ProcessedPath    string                `json:"processed_file_path,omitempty"`
	PrimaryMatch     *PrimaryMatch         `json:"primary_match,omitempty"`
	SimilarRecords   []SimilarityCandidate `json:"similar_records,omitempty"`
	CreatedAt        Timestamp             `json:"created_at,omitzero"`
}

// MetadataField names a mutable piece of record metadata.
type MetadataField string

const (
	FieldTags        MetadataField = "tags"
	FieldVisibility  MetadataField = "visibility"
	FieldContext     MetadataField = "context"
	FieldDevFeedback MetadataField = "dev_feedback"
	FieldThresholds  MetadataField = "thresholds"
)

// Valid reports whether f is a field the service accepts.
func (f MetadataField) Valid() bool {
	switch f {
	case FieldTags, FieldVisibility, FieldContext, FieldDevFeedback, FieldThresholds:
		return true
	}
	return false
}
