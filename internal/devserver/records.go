package devserver

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/raphaelgruber/loglens/internal/models"
)

var (
	// ErrRecordNotFound is returned for unknown record ids.
	ErrRecordNotFound = errors.New("record not found")
	// ErrFileNotFound is returned for download paths no record owns.
	ErrFileNotFound = errors.New("file not found")
	// ErrAccessDenied is returned for download paths outside the upload
	// and processed directories.
	ErrAccessDenied = errors.New("access denied")
)

// Directories record files are filed under.
const (
	uploadsDir   = "uploads"
	processedDir = "processed"
)

type storedRecord struct {
	models.Record
	Thresholds map[string]float64
	raw        string
	tokens     map[string]struct{}
}

// RecordStore holds processed records and scores them against each other.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*storedRecord
	order   []string
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]*storedRecord)}
}

// Create files a processed upload as a new record and sets its primary
// match to the most similar existing record, if any.
func (s *RecordStore) Create(u upload) models.Record {
	now := time.Now()
	id := uuid.New().String()[:8]
	rec := &storedRecord{
		Record: models.Record{
			ID:               id,
			Filename:         u.Filename,
			Context:          u.Context,
			Visibility:       u.Visibility,
			Summary:          summarize(u.Content),
			ProcessedContent: processLog(u.Content),
			RawFilePath:      path.Join(uploadsDir, id+"_"+path.Base(u.Filename)),
			ProcessedPath:    path.Join(processedDir, id+".log"),
			CreatedAt:        models.NewTimestamp(now),
		},
		raw:    u.Content,
		tokens: tokenize(u.Content),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if best := s.similarLocked(rec, 0, 1); len(best) > 0 {
		rec.PrimaryMatch = &models.PrimaryMatch{
			RecordID:   best[0].RecordID,
			Percentage: math.Round(best[0].Score.Value*1000) / 10,
		}
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec.Record
}

// Get returns a copy of the record.
func (s *RecordStore) Get(id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.Record{}, ErrRecordNotFound
	}
	return copyRecord(rec.Record), nil
}

// File returns the content stored at a record's raw or processed path.
func (s *RecordStore) File(p string) (string, error) {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	dir, _, _ := strings.Cut(p, "/")
	if dir != uploadsDir && dir != processedDir {
		return "", ErrAccessDenied
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		switch p {
		case rec.RawFilePath:
			return rec.raw, nil
		case rec.ProcessedPath:
			return rec.ProcessedContent, nil
		}
	}
	return "", ErrFileNotFound
}

// List returns records in creation order, filtered by visibility ("" or
// "all" for any) and tag ("" for any).
func (s *RecordStore) List(visibility, tag string) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if visibility != "" && visibility != "all" && string(rec.Visibility) != visibility {
			continue
		}
		if tag != "" && !slices.Contains(rec.Tags, tag) {
			continue
		}
		r := copyRecord(rec.Record)
		r.ProcessedContent = ""
		out = append(out, r)
	}
	return out
}

// Similar scores every other record against id and returns those at or
// above minScore (a fraction), best first, at most limit (0 for all).
func (s *RecordStore) Similar(id string, minScore float64, limit int) ([]models.SimilarityCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return s.similarLocked(rec, minScore, limit), nil
}

func (s *RecordStore) similarLocked(rec *storedRecord, minScore float64, limit int) []models.SimilarityCandidate {
	var out []models.SimilarityCandidate
	for _, id := range s.order {
		other := s.records[id]
		if other.ID == rec.ID {
			continue
		}
		score := jaccard(rec.tokens, other.tokens)
		if score < minScore || score == 0 {
			continue
		}
		out = append(out, models.SimilarityCandidate{
			RecordID:       other.ID,
			Score:          models.NewScore(math.Round(score*10000) / 10000),
			IsPrimaryMatch: rec.PrimaryMatch != nil && rec.PrimaryMatch.RecordID == other.ID,
			Title:          other.Filename,
			Context:        other.Context,
			Visibility:     other.Visibility,
			CreatedAt:      other.CreatedAt,
		})
	}
	slices.SortStableFunc(out, func(a, b models.SimilarityCandidate) int {
		switch {
		case a.Score.Value > b.Score.Value:
			return -1
		case a.Score.Value < b.Score.Value:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Patch sets one metadata field. value is the decoded JSON value.
func (s *RecordStore) Patch(id string, field models.MetadataField, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}

	switch field {
	case models.FieldTags:
		tags, err := stringList(value)
		if err != nil {
			return err
		}
		rec.Tags = models.NormalizeTags(tags)
	case models.FieldVisibility:
		str, _ := value.(string)
		v, err := models.ParseVisibility(str)
		if err != nil {
			return err
		}
		rec.Visibility = v
	case models.FieldContext:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("context must be a string")
		}
		rec.Context = str
	case models.FieldDevFeedback:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("dev_feedback must be a string")
		}
		rec.DevFeedback = str
	case models.FieldThresholds:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("thresholds must be an object")
		}
		thresholds := make(map[string]float64, len(m))
		for k, v := range m {
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("threshold %s must be a number", k)
			}
			thresholds[k] = f
		}
		rec.Thresholds = thresholds
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

// DeleteTag removes tag from the record. Removing an absent tag is not an error.
func (s *RecordStore) DeleteTag(id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Tags = slices.DeleteFunc(rec.Tags, func(t string) bool { return t == tag })
	return nil
}

func copyRecord(r models.Record) models.Record {
	r.Tags = slices.Clone(r.Tags)
	if r.PrimaryMatch != nil {
		pm := *r.PrimaryMatch
		r.PrimaryMatch = &pm
	}
	return r
}

func stringList(value any) ([]string, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("tags must be a list of strings")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("tags must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// tokenize returns the set of lowercase words in content, ignoring numbers
// so timestamps and ids do not dominate the score.
func tokenize(content string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	}) {
		if len(w) > 1 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

var timestampPattern = regexp.MustCompile(`\[.*?\]|\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(\.\d+)?Z?`)

// processLog strips timestamps and bracketed prefixes and drops blank lines.
func processLog(content string) string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(timestampPattern.ReplaceAllString(sc.Text(), ""))
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// summarize counts lines and error lines.
func summarize(content string) string {
	var lines, errs int
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		lines++
		upper := strings.ToUpper(sc.Text())
		if strings.Contains(upper, "ERROR") || strings.Contains(upper, "FATAL") || strings.Contains(upper, "PANIC") {
			errs++
		}
	}
	return fmt.Sprintf("%d lines, %d error lines", lines, errs)
}
