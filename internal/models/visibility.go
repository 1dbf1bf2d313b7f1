// Package models defines data structures shared by the loglens client, tracker, and ranker.
package models

import (
	"fmt"
	"strings"
)

// Visibility controls who can see an uploaded record.
type Visibility string

const (
	VisibilitySelf   Visibility = "self"
	VisibilityTeam   Visibility = "team"
	VisibilityPublic Visibility = "public"
)

// DefaultVisibility is used when neither the user nor a stored preference chose one.
const DefaultVisibility = VisibilitySelf

// Visibilities lists every accepted visibility in display order.
var Visibilities = []Visibility{VisibilitySelf, VisibilityTeam, VisibilityPublic}

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilitySelf, VisibilityTeam, VisibilityPublic:
		return true
	}
	return false
}

func (v Visibility) String() string {
	return string(v)
}

// ParseVisibility accepts self, team or public (case-insensitive).
// "private" is treated as an alias for self.
func ParseVisibility(s string) (Visibility, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "private":
		return VisibilitySelf, nil
	default:
		vis := Visibility(v)
		if !vis.Valid() {
			return "", fmt.Errorf("invalid visibility %q (expected self, team or public)", s)
		}
		return vis, nil
	}
}
