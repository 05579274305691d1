package gemini

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/session"
)

// liveSession is the subset of *genai.Session used by Proxy.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendClientContent(input genai.LiveClientContentInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Proxy is one Gemini Live session seen as a session.Channel.
type Proxy struct {
	live liveSession

	// genai sessions write to a single websocket; sends are serialized here.
	sendMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	pending []session.InboundEvent
}

func newProxy(live liveSession) *Proxy {
	return &Proxy{live: live}
}

// Send forwards one outbound frame. Streaming media goes out as realtime
// input; text goes out as client content carrying the turn flag.
func (p *Proxy) Send(ctx context.Context, f session.Frame) error {
	if p.isClosed() {
		return fmt.Errorf("proxy is closed")
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	switch f.Kind {
	case session.FrameAudio, session.FrameImage:
		err := p.live.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{MIMEType: f.MIMEType, Data: f.Data},
		})
		if err != nil {
			return fmt.Errorf("failed to send %s: %w", f.Kind, err)
		}
		logger.Debug("📤 Sent to Gemini", "kind", f.Kind.String(), "bytes", len(f.Data))
	case session.FrameText:
		turnComplete := f.EndOfTurn
		err := p.live.SendClientContent(genai.LiveClientContentInput{
			Turns: []*genai.Content{
				{
					Role:  "user",
					Parts: []*genai.Part{{Text: f.Text}},
				},
			},
			TurnComplete: &turnComplete,
		})
		if err != nil {
			return fmt.Errorf("failed to send text: %w", err)
		}
		logger.Debug("📤 Sent text to Gemini", "chars", len(f.Text), "end_of_turn", f.EndOfTurn)
	default:
		return fmt.Errorf("unsupported frame kind %d", f.Kind)
	}
	return nil
}

// Receive returns the next inbound event. One server message may carry
// several events; they are handed out in order.
func (p *Proxy) Receive(ctx context.Context) (session.InboundEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.mu.Lock()
		if len(p.pending) > 0 {
			ev := p.pending[0]
			p.pending = p.pending[1:]
			p.mu.Unlock()
			return ev, nil
		}
		p.mu.Unlock()

		msg, err := p.live.Receive()
		if err != nil {
			return nil, fmt.Errorf("gemini receive: %w", err)
		}

		events := translate(msg)
		if len(events) == 0 {
			continue
		}
		p.mu.Lock()
		p.pending = append(p.pending, events...)
		p.mu.Unlock()
	}
}

// SendToolResponse answers one tool-call batch.
func (p *Proxy) SendToolResponse(ctx context.Context, responses []session.ToolResponse) error {
	if p.isClosed() {
		return fmt.Errorf("proxy is closed")
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	err := p.live.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: functionResponses(responses),
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}

	logger.Info("📤 Sent tool response(s) to Gemini", "count", len(responses))
	return nil
}

// Close terminates the Gemini connection
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	p.mu.Unlock()

	return p.live.Close()
}

func (p *Proxy) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func functionResponses(responses []session.ToolResponse) []*genai.FunctionResponse {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		key := "result"
		if r.Status == session.ToolRejected {
			key = "error"
		}
		out = append(out, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{key: r.Result},
		})
	}
	return out
}

// translate flattens a server message into session events: tool calls
// first, then audio, transcriptions, interruption and turn end.
func translate(msg *genai.LiveServerMessage) []session.InboundEvent {
	if msg == nil {
		return nil
	}
	var events []session.InboundEvent

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]session.ToolCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			calls = append(calls, session.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		logger.Info("📥 Received from Gemini: function call(s)", "count", len(calls))
		events = append(events, session.ToolCallBatch{Calls: calls})
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					events = append(events, session.AudioChunk{Data: part.InlineData.Data})
				}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, session.InputTranscript{Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, session.OutputTranscript{Text: sc.OutputTranscription.Text})
		}
		if sc.Interrupted {
			events = append(events, session.Interrupted{})
		}
		if sc.TurnComplete {
			events = append(events, session.TurnComplete{})
		}
	}

	if msg.GoAway != nil {
		events = append(events, session.GoAway{TimeLeft: msg.GoAway.TimeLeft})
	}
	return events
}
