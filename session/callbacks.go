package session

// Speaker labels used in transcriptions.
const (
	SenderUser  = "User"
	SenderModel = "ADA"
)

// StatusLevel classifies a status notification.
type StatusLevel string

const (
	StatusInfo    StatusLevel = "info"
	StatusWarning StatusLevel = "warning"
	StatusError   StatusLevel = "error"
)

// Transcription is a fragment of recognised speech.
type Transcription struct {
	Sender string
	Text   string
}

// ConfirmationRequest asks the UI to approve or deny a tool call.
type ConfirmationRequest struct {
	ID   string
	Tool string
	Args map[string]any
}

// BackgroundResult reports progress or completion of a background task.
type BackgroundResult struct {
	Tool     string
	Progress *Progress
	Done     bool
	Result   string
	Err      error
}

// Status is a lifecycle or diagnostic notification.
type Status struct {
	Level   StatusLevel
	State   State
	Message string
}

// Callbacks deliver session output to the embedding layer. Every field is
// optional. Callbacks are invoked from pipeline goroutines and must not block
// for long.
type Callbacks struct {
	OnAudioOut      func(pcm []byte)
	OnTranscription func(t Transcription)

	// OnToolConfirmationRequest enables the confirmation gate. When nil,
	// tools run without asking.
	OnToolConfirmationRequest func(req ConfirmationRequest)

	OnBackgroundResult func(r BackgroundResult)
	OnStatus           func(st Status)
}

func (s *Session) notify(level StatusLevel, state State, msg string) {
	if cb := s.cfg.Callbacks.OnStatus; cb != nil {
		cb(Status{Level: level, State: state, Message: msg})
	}
}

func (s *Session) emitTranscription(sender, text string) {
	if text == "" {
		return
	}
	if cb := s.cfg.Callbacks.OnTranscription; cb != nil {
		cb(Transcription{Sender: sender, Text: text})
	}
}

func (s *Session) emitBackground(r BackgroundResult) {
	if cb := s.cfg.Callbacks.OnBackgroundResult; cb != nil {
		cb(r)
	}
}
