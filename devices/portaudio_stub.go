//go:build !portaudio

package devices

import "context"

// Microphone is unavailable without the portaudio build tag.
type Microphone struct{}

func NewMicrophone(index int) *Microphone { return &Microphone{} }

func (m *Microphone) Open(ctx context.Context) error           { return ErrAudioUnavailable }
func (m *Microphone) Read(ctx context.Context) ([]byte, error) { return nil, ErrAudioUnavailable }
func (m *Microphone) MIMEType() string                         { return MIMEAudioInput }
func (m *Microphone) Close() error                             { return nil }

// Speaker is unavailable without the portaudio build tag.
type Speaker struct{}

func NewSpeaker(index int) *Speaker { return &Speaker{} }

func (s *Speaker) Open(ctx context.Context) error              { return ErrAudioUnavailable }
func (s *Speaker) Write(ctx context.Context, pcm []byte) error { return ErrAudioUnavailable }
func (s *Speaker) Close() error                                { return nil }

func ListAudioDevices() ([]string, error) { return nil, ErrAudioUnavailable }
