// Package prefs persists a small set of named user preferences.
//
// Each preference has a fixed domain and a default. Reads never fail on a
// stored value outside the domain: it is treated as unset, since stored
// preferences may predate a change to the domain.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/raphaelgruber/loglens/internal/models"
)

var (
	// ErrUnknownPreference is returned for a name that is not registered.
	ErrUnknownPreference = errors.New("unknown preference")

	// ErrInvalidValue is returned by Set for a value outside the preference's domain.
	ErrInvalidValue = errors.New("invalid preference value")
)

// Preference names.
const (
	DefaultVisibilityKey = "default_visibility"
	SimilarityFloorKey   = "similarity_floor"
)

// Backend stores raw preference values by key. Each Save and Delete
// replaces the value for one key atomically.
type Backend interface {
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Definition describes one preference.
type Definition struct {
	Name        string
	Default     string
	Description string

	// Parse canonicalizes a value, returning an error if it is outside the domain.
	Parse func(string) (string, error)
}

var definitions = map[string]Definition{
	DefaultVisibilityKey: {
		Name:        DefaultVisibilityKey,
		Default:     string(models.DefaultVisibility),
		Description: "visibility for new uploads (self, team, public)",
		Parse: func(s string) (string, error) {
			v, err := models.ParseVisibility(s)
			return string(v), err
		},
	},
	SimilarityFloorKey: {
		Name:        SimilarityFloorKey,
		Default:     "80",
		Description: "minimum similarity percentage shown (0-100)",
		Parse:       parsePercent,
	},
}

func parsePercent(s string) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return "", fmt.Errorf("%q is not a number", s)
	}
	if f < 0 || f > 100 {
		return "", fmt.Errorf("%v is outside 0-100", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// Definitions returns every known preference sorted by name.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the definition for name.
func Lookup(name string) (Definition, error) {
	d, ok := definitions[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownPreference, name)
	}
	return d, nil
}

// Store reads and writes preferences through a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// NewStore wraps backend. A nil logger uses slog.Default().
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Get returns the stored value for name, or its default when the value is
// absent or no longer valid.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	d, err := Lookup(name)
	if err != nil {
		return "", err
	}

	raw, ok, err := s.backend.Load(ctx, name)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}
	if !ok {
		return d.Default, nil
	}

	v, err := d.Parse(raw)
	if err != nil {
		s.logger.Warn("ignoring stored preference", "name", name, "value", raw, "error", err)
		return d.Default, nil
	}
	return v, nil
}

// Set validates and stores value for name.
func (s *Store) Set(ctx context.Context, name, value string) error {
	d, err := Lookup(name)
	if err != nil {
		return err
	}
	v, err := d.Parse(value)
	if err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidValue, name, err)
	}
	if err := s.backend.Save(ctx, name, v); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Clear removes the stored value so Get returns the default again.
func (s *Store) Clear(ctx context.Context, name string) error {
	if _, err := Lookup(name); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, name); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	return nil
}

// DefaultVisibility returns the visibility for new uploads.
func (s *Store) DefaultVisibility(ctx context.Context) (models.Visibility, error) {
	v, err := s.Get(ctx, DefaultVisibilityKey)
	if err != nil {
		return models.DefaultVisibility, err
	}
	return models.Visibility(v), nil
}

// SetDefaultVisibility stores the visibility for new uploads.
func (s *Store) SetDefaultVisibility(ctx context.Context, v models.Visibility) error {
	return s.Set(ctx, DefaultVisibilityKey, string(v))
}

// SimilarityFloor returns the similarity floor percentage.
func (s *Store) SimilarityFloor(ctx context.Context) (float64, error) {
	v, err := s.Get(ctx, SimilarityFloorKey)
	if err != nil {
		return 80, err
	}
	return strconv.ParseFloat(v, 64)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
