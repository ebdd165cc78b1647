package model

import "time"

// DeviceInfo is what a device reports about itself in device.register.
type DeviceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IP      string `json:"ip"`
	Version string `json:"version"`
}

// DevicePublic is one entry of the devices:update snapshot.
type DevicePublic struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IP          string       `json:"ip"`
	PublicIP    string       `json:"publicIp"`
	Version     string       `json:"version"`
	ConnectedAt time.Time    `json:"connectedAt"`
	ClaimedBy   *ClaimPublic `json:"claimedBy"`
}
