package model

import "time"

// Identity is the verified user behind a socket, as returned by the auth provider.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// UserPresence is one deduplicated entry of the users:update snapshot.
type UserPresence struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar"`
	Connections []string  `json:"connections"`
	ConnectedAt time.Time `json:"connectedAt"`
}
