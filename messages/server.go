package messages

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeGeminiError      = "GEMINI_ERROR"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeNotRunning       = "NOT_RUNNING"
	ErrCodeMemoryFailed     = "MEMORY_FAILED"
)

// Server event types
const (
	TypeStatus                  = "status"
	TypeError                   = "error"
	TypeAudioData               = "audio_data"
	TypeTranscription           = "transcription"
	TypeToolConfirmationRequest = "tool_confirmation_request"
	TypeCADData                 = "cad_data"
	TypeBrowserFrame            = "browser_frame"
	TypeAuthStatus              = "auth_status"
	TypePong                    = "pong"
)

// ServerMessage represents a message sent to frontend client
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Msg   string `json:"msg"`
	Level string `json:"level,omitempty"`
	State string `json:"state,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// AudioPayload contains model speech for UI metering
type AudioPayload struct {
	Data     string `json:"data"`     // Base64-encoded PCM audio
	MimeType string `json:"mimeType"` // "audio/pcm;rate=24000"
}

// TranscriptionPayload is a fragment of recognised speech
type TranscriptionPayload struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ToolConfirmationPayload asks the user to approve a tool call
type ToolConfirmationPayload struct {
	ID   string                 `json:"id"`
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// CADPayload carries a generated model
type CADPayload struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

// BrowserFramePayload carries web agent progress
type BrowserFramePayload struct {
	Image string `json:"image,omitempty"`
	Log   string `json:"log,omitempty"`
}

// AuthStatusPayload reports the authorization state
type AuthStatusPayload struct {
	Authenticated bool `json:"authenticated"`
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, msg string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload:   StatusPayload{Msg: msg},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, msg string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload:   ErrorPayload{Code: code, Msg: msg},
	}
}

// NewAudioMessage creates an audio response message
func NewAudioMessage(sessionID, data string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAudioData,
		SessionID: sessionID,
		Payload: AudioPayload{
			Data:     data,
			MimeType: "audio/pcm;rate=24000",
		},
	}
}

// NewTranscriptionMessage creates a transcription message
func NewTranscriptionMessage(sessionID, sender, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTranscription,
		SessionID: sessionID,
		Payload:   TranscriptionPayload{Sender: sender, Text: text},
	}
}

// NewToolConfirmationMessage creates a confirmation request
func NewToolConfirmationMessage(sessionID, id, tool string, args map[string]interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      TypeToolConfirmationRequest,
		SessionID: sessionID,
		Payload:   ToolConfirmationPayload{ID: id, Tool: tool, Args: args},
	}
}

// NewCADMessage creates a generated model message
func NewCADMessage(sessionID, format, data string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeCADData,
		SessionID: sessionID,
		Payload:   CADPayload{Format: format, Data: data},
	}
}

// NewBrowserFrameMessage creates a web agent progress message
func NewBrowserFrameMessage(sessionID, image, log string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeBrowserFrame,
		SessionID: sessionID,
		Payload:   BrowserFramePayload{Image: image, Log: log},
	}
}

// NewAuthStatusMessage creates an authorization status message
func NewAuthStatusMessage(sessionID string, authenticated bool) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAuthStatus,
		SessionID: sessionID,
		Payload:   AuthStatusPayload{Authenticated: authenticated},
	}
}
