//go:build portaudio

package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/room4-2/ada/logger"
)

// Microphone captures 16kHz mono PCM16 from a PortAudio input device.
type Microphone struct {
	index int

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// NewMicrophone creates a microphone on the device at index, or the default
// device when index is DefaultDevice.
func NewMicrophone(index int) *Microphone {
	return &Microphone{index: index}
}

// Open implements session.InputDevice.
func (m *Microphone) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	dev, err := inputDevice(m.index)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = Channels
	params.SampleRate = InputSampleRate
	params.FramesPerBuffer = ChunkSize

	buf := make([]int16, ChunkSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	m.stream = stream
	m.buf = buf
	logger.Info("🎤 Microphone opened", "device", dev.Name, "rate", InputSampleRate)
	return nil
}

// Read blocks until one buffer of audio is available. Input overflows are
// ignored.
func (m *Microphone) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil, fmt.Errorf("microphone is not open")
	}
	if err := m.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return nil, err
	}
	return int16ToBytes(m.buf), nil
}

// MIMEType implements session.InputDevice.
func (m *Microphone) MIMEType() string { return MIMEAudioInput }

// Close stops the stream and releases PortAudio.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	m.stream.Stop()
	err := m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	return err
}

// Speaker plays 24kHz mono PCM16 through a PortAudio output device.
type Speaker struct {
	index int

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	pending []byte
}

// NewSpeaker creates a speaker on the device at index, or the default device
// when index is DefaultDevice.
func NewSpeaker(index int) *Speaker {
	return &Speaker{index: index}
}

// Open implements session.OutputDevice.
func (s *Speaker) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	dev, err := outputDevice(s.index)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = Channels
	params.SampleRate = OutputSampleRate
	params.FramesPerBuffer = ChunkSize

	buf := make([]int16, ChunkSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	s.stream = stream
	s.buf = buf
	logger.Info("🔊 Speaker opened", "device", dev.Name, "rate", OutputSampleRate)
	return nil
}

// Write plays whole buffers and keeps the remainder for the next chunk.
func (s *Speaker) Write(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("speaker is not open")
	}

	s.pending = append(s.pending, pcm...)
	frame := len(s.buf) * 2
	for len(s.pending) >= frame {
		if err := ctx.Err(); err != nil {
			return err
		}
		copy(s.buf, bytesToInt16(s.pending[:frame]))
		if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return err
		}
		s.pending = s.pending[frame:]
	}
	return nil
}

// Close stops the stream and releases PortAudio. Unplayed audio is dropped.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	s.stream.Stop()
	err := s.stream.Close()
	s.stream = nil
	s.pending = nil
	portaudio.Terminate()
	return err
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		return portaudio.DefaultInputDevice()
	}
	dev, err := deviceAt(index)
	if err != nil {
		return nil, err
	}
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", index, dev.Name)
	}
	return dev, nil
}

func outputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		return portaudio.DefaultOutputDevice()
	}
	dev, err := deviceAt(index)
	if err != nil {
		return nil, err
	}
	if dev.MaxOutputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no output channels", index, dev.Name)
	}
	return dev, nil
}

func deviceAt(index int) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("audio device %d not found (%d available)", index, len(devs))
	}
	return devs[index], nil
}

// ListAudioDevices returns one line per PortAudio device.
func ListAudioDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(devs))
	for i, d := range devs {
		out = append(out, fmt.Sprintf("%d: %s (in %d, out %d)", i, d.Name, d.MaxInputChannels, d.MaxOutputChannels))
	}
	return out, nil
}
