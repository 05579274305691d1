package session

import (
	"context"
	"time"
)

// FrameKind tags an outbound frame.
type FrameKind int

const (
	FrameAudio FrameKind = iota
	FrameImage
	FrameText
)

func (k FrameKind) String() string {
	switch k {
	case FrameAudio:
		return "audio"
	case FrameImage:
		return "image"
	case FrameText:
		return "text"
	default:
		return "unknown"
	}
}

// Frame is one unit of outbound traffic. Audio and image frames carry Data and
// MIMEType; text frames carry Text and EndOfTurn.
type Frame struct {
	Kind      FrameKind
	Data      []byte
	MIMEType  string
	Text      string
	EndOfTurn bool
}

const (
	MIMEAudioPCM = "audio/pcm"
	MIMEImageJPG = "image/jpeg"
)

// AudioFrame wraps a PCM chunk. Streaming media never ends a turn.
func AudioFrame(data []byte, mimeType string) Frame {
	if mimeType == "" {
		mimeType = MIMEAudioPCM
	}
	return Frame{Kind: FrameAudio, Data: data, MIMEType: mimeType}
}

// ImageFrame wraps an encoded image.
func ImageFrame(data []byte, mimeType string) Frame {
	if mimeType == "" {
		mimeType = MIMEImageJPG
	}
	return Frame{Kind: FrameImage, Data: data, MIMEType: mimeType}
}

// TextFrame wraps a discrete text turn.
func TextFrame(text string, endOfTurn bool) Frame {
	return Frame{Kind: FrameText, Text: text, EndOfTurn: endOfTurn}
}

// InboundEvent is everything the receive loop can read from a Channel.
// The set of implementations is closed: AudioChunk, InputTranscript,
// OutputTranscript, ToolCallBatch, TurnComplete, Interrupted and GoAway.
type InboundEvent interface {
	inboundEvent()
}

// AudioChunk is model speech to be played back.
type AudioChunk struct {
	Data []byte
}

// InputTranscript is the transcription of the user's speech.
type InputTranscript struct {
	Text string
}

// OutputTranscript is the transcription of the model's speech.
type OutputTranscript struct {
	Text string
}

// ToolCallBatch carries every function call of one model message.
type ToolCallBatch struct {
	Calls []ToolCall
}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// Interrupted means the user barged in and queued playback is stale.
type Interrupted struct{}

// GoAway announces the server will close the connection soon.
type GoAway struct {
	TimeLeft time.Duration
}

func (AudioChunk) inboundEvent()       {}
func (InputTranscript) inboundEvent()  {}
func (OutputTranscript) inboundEvent() {}
func (ToolCallBatch) inboundEvent()    {}
func (TurnComplete) inboundEvent()     {}
func (Interrupted) inboundEvent()      {}
func (GoAway) inboundEvent()           {}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolStatus classifies the immediate answer to a tool call.
type ToolStatus string

const (
	ToolStarted  ToolStatus = "started"
	ToolDenied   ToolStatus = "denied"
	ToolRejected ToolStatus = "rejected"
)

// ToolResponse is the immediate answer to one ToolCall.
type ToolResponse struct {
	ID     string
	Name   string
	Status ToolStatus
	Result string
}

// Connector opens a duplex channel to the conversational agent.
type Connector interface {
	Connect(ctx context.Context) (Channel, error)
}

// Channel is one live duplex conversation. Receive yields an infinite
// sequence of events and is not restartable; a closed channel is replaced by
// opening a new one. Send and SendToolResponse must be safe for concurrent use.
type Channel interface {
	Send(ctx context.Context, f Frame) error
	Receive(ctx context.Context) (InboundEvent, error)
	SendToolResponse(ctx context.Context, responses []ToolResponse) error
	Close() error
}

// Progress is an intermediate update from a background task.
type Progress struct {
	Image string         // base64 encoded screenshot, optional
	Log   string         // human readable step description
	Data  map[string]any // structured artifact, e.g. a generated model
}

// Tool is a registered, invocable function.
type Tool interface {
	Validate(args map[string]any) error
	RequiresConfirmation() bool
	Acknowledgement() string
	Run(ctx context.Context, args map[string]any, progress func(Progress)) (string, error)
	CompletionMessage(result string, err error) string
}

// Tools looks tools up by name.
type Tools interface {
	Lookup(name string) (Tool, bool)
}

// InputDevice produces one sample per Read. Open is called once per pipeline
// and the handle stays open until Close, including while paused.
type InputDevice interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]byte, error)
	MIMEType() string
	Close() error
}

// OutputDevice renders PCM audio.
type OutputDevice interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, pcm []byte) error
	Close() error
}

// Devices groups the hardware a session may use. Nil entries disable the
// corresponding modality.
type Devices struct {
	Microphone InputDevice
	Camera     InputDevice
	Screen     InputDevice
	Speaker    OutputDevice
}

// VideoMode selects which video source is captured.
type VideoMode string

const (
	VideoCamera VideoMode = "camera"
	VideoScreen VideoMode = "screen"
	VideoNone   VideoMode = "none"
)

// ParseVideoMode returns VideoNone for unknown values.
func ParseVideoMode(s string) VideoMode {
	switch VideoMode(s) {
	case VideoCamera, VideoScreen:
		return VideoMode(s)
	default:
		return VideoNone
	}
}
