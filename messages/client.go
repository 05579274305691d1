package messages

import "encoding/json"

// Client event types
const (
	TypeAuthenticate = "authenticate"
	TypeStartAudio   = "start_audio"
	TypeStopAudio    = "stop_audio"
	TypePauseAudio   = "pause_audio"
	TypeResumeAudio  = "resume_audio"
	TypeConfirmTool  = "confirm_tool"
	TypeUserInput    = "user_input"
	TypeVideoFrame   = "video_frame"
	TypeSaveMemory   = "save_memory"
	TypeUploadMemory = "upload_memory"
	TypePing         = "ping"
)

// ClientMessage represents a message from frontend client
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthenticatePayload carries the client's access token
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// StartAudioPayload starts the assistant
type StartAudioPayload struct {
	DeviceIndex *int   `json:"device_index,omitempty"`
	Muted       bool   `json:"muted,omitempty"`
	VideoMode   string `json:"video_mode,omitempty"` // "camera", "screen", "none"
}

// ConfirmToolPayload answers a tool confirmation request
type ConfirmToolPayload struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed"`
}

// UserInputPayload is a typed user turn
type UserInputPayload struct {
	Text string `json:"text"`
}

// VideoFramePayload is a frame captured by the client
type VideoFramePayload struct {
	Image string `json:"image"` // base64 JPEG, data URL accepted
}

// MemoryMessage is one line of a conversation log
type MemoryMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// SaveMemoryPayload asks the server to persist the conversation
type SaveMemoryPayload struct {
	Messages []MemoryMessage `json:"messages"`
	Filename string          `json:"filename,omitempty"`
}

// UploadMemoryPayload loads a previous conversation into context
type UploadMemoryPayload struct {
	Memory string `json:"memory"`
}
