// Package gemini adapts the Gemini Live API and the Gemini models API to the
// session orchestrator.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/session"
)

// NewClient creates a Gemini API client
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// LiveOptions configure a Live connection.
type LiveOptions struct {
	Model        string
	SystemPrompt string
	Voice        string // Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr
	Tools        []*genai.Tool
}

// Connector opens Live sessions. It implements session.Connector.
type Connector struct {
	client *genai.Client
	model  string
	config *genai.LiveConnectConfig
}

// NewConnector prepares the Live configuration: audio responses, both
// transcriptions, the persona and the tool set.
func NewConnector(client *genai.Client, opts LiveOptions) *Connector {
	return &Connector{
		client: client,
		model:  opts.Model,
		config: liveConfig(opts),
	}
}

func liveConfig(opts LiveOptions) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		Tools:                    opts.Tools,
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemPrompt}},
		}
	}
	if opts.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
			},
		}
	}
	return cfg
}

// Connect implements session.Connector.
func (c *Connector) Connect(ctx context.Context) (session.Channel, error) {
	live, err := c.client.Live.Connect(ctx, c.model, c.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}
	logger.Info("✅ Connected to Gemini Live via SDK", "model", c.model)
	return newProxy(live), nil
}

// Generator produces content from a model. *Model implements it; agents
// depend on this interface.
type Generator interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Model is a non-live model used by background sub-agents.
type Model struct {
	client *genai.Client
	name   string
}

// NewModel binds a model name to a client
func NewModel(client *genai.Client, name string) *Model {
	return &Model{client: client, name: name}
}

func (m *Model) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content with %s: %w", m.name, err)
	}
	return resp, nil
}
