package models

// Profile is the signed-in user's account as the service reports it.
type Profile struct {
	UserID      string    `json:"user_id"`
	TeamID      string    `json:"team_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   Timestamp `json:"created_at,omitzero"`
}

// ProfileUpdate changes the fields that are set and leaves the rest alone.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.Email == nil && u.TeamID == nil
}
