package model

import "time"

// ClaimRecord binds a device to its owning user. One per device id.
type ClaimRecord struct {
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	AvatarURL string    `json:"avatar_url"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// ClaimPublic is the claim-owner annotation on a DevicePublic.
type ClaimPublic struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar"`
	ClaimedAt  time.Time `json:"claimedAt"`
}

func (c *ClaimRecord) ToPublic() *ClaimPublic {
	return &ClaimPublic{
		UserID:     c.UserID,
		UserName:   c.UserName,
		UserAvatar: c.AvatarURL,
		ClaimedAt:  c.ClaimedAt,
	}
}

type ClaimState string

const (
	ClaimUnclaimed ClaimState = "unclaimed"
	ClaimPending   ClaimState = "pending"
	ClaimClaimed   ClaimState = "claimed"
)
