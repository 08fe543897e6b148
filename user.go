package eventapi

import (
	"encoding/json"
	"fmt"
	"time"
)

// User is the actor attached to a change.
type User struct {
	ID          string           `json:"id"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name"`
	AvatarURL   string           `json:"avatar_url,omitempty"`
	Style       map[string]any   `json:"style,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
	Connections []UserConnection `json:"connections,omitempty"`
}

func (u User) String() string {
	return fmt.Sprintf("<User id=%s username=%s display_name=%s connections=%d>",
		u.ID, u.Username, u.DisplayName, len(u.Connections))
}

// UserConnection is a third-party platform account linked to a user.
type UserConnection struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Platform      string    `json:"platform"`
	LinkedAt      int64     `json:"linked_at"`
	LinkedTime    time.Time `json:"-"` // Parsed from linked_at
	EmoteCapacity int       `json:"emote_capacity"`
	EmoteSetID    string    `json:"emote_set_id"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for UserConnection
func (c *UserConnection) UnmarshalJSON(data []byte) error {
	type Alias UserConnection
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// linked_at is in milliseconds
	if c.LinkedAt != 0 {
		c.LinkedTime = time.UnixMilli(c.LinkedAt)
	}

	return nil
}
