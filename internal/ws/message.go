package ws

type EventType string

// User socket events.
const (
	EventDevicesUpdate EventType = "devices:update"
	EventUsersUpdate   EventType = "users:update"
	EventPoke          EventType = "poke"
	EventClaim         EventType = "claim"
	EventUnclaim       EventType = "unclaim"
	EventClaimResult   EventType = "claim:result"
	EventError         EventType = "error"
)

// Device socket message types.
const (
	DeviceRegister     EventType = "device.register"
	DeviceHello        EventType = "hello" // legacy simulator name for device.register
	DeviceClaimConfirm EventType = "claim_confirm"
	DeviceClaimReject  EventType = "claim_reject"
	DevicePoke         EventType = "poke"
	DeviceClaimRequest EventType = "claim_request"
)

// Poke targets.
const (
	TargetDevice = "device"
	TargetUser   = "user"
)

// IncomingMessage is what a user socket sends.
type IncomingMessage struct {
	Type EventType `json:"type"`

	// claim / unclaim
	DeviceID string `json:"deviceId,omitempty"`

	// poke
	Target            string `json:"target,omitempty"`
	ID                string `json:"id,omitempty"`
	Text              string `json:"text,omitempty"`
	SenderBitmap      string `json:"senderBitmap,omitempty"`
	SenderBitmapWidth int    `json:"senderBitmapWidth,omitempty"`
	TextBitmap        string `json:"textBitmap,omitempty"`
	TextBitmapWidth   int    `json:"textBitmapWidth,omitempty"`
}

// DeviceMessage is what a device socket sends. Only device.register carries fields.
type DeviceMessage struct {
	Type    EventType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Name    string    `json:"name,omitempty"`
	IP      string    `json:"ip,omitempty"`
	Version string    `json:"version,omitempty"`
}

// OutgoingMessage is what the server sends to a user socket.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Device-bound messages are flat JSON objects, the firmware reads "type" next to the fields.

type PokeMessage struct {
	Type              EventType `json:"type"`
	Sender            string    `json:"sender"`
	Text              string    `json:"text"`
	SenderBitmap      string    `json:"senderBitmap,omitempty"`
	SenderBitmapWidth int       `json:"senderBitmapWidth,omitempty"`
	TextBitmap        string    `json:"textBitmap,omitempty"`
	TextBitmapWidth   int       `json:"textBitmapWidth,omitempty"`
}

type ClaimRequestMessage struct {
	Type       EventType `json:"type"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar"`
}

// UserPokePayload is delivered to every socket of a poked user.
type UserPokePayload struct {
	FromUserID string `json:"fromUserId"`
	FromName   string `json:"fromName"`
	FromAvatar string `json:"fromAvatar,omitempty"`
	Text       string `json:"text"`
}

// ClaimResultPayload tells the requester how its claim ended.
type ClaimResultPayload struct {
	DeviceID string `json:"deviceId"`
	Status   string `json:"status"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
