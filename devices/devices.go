// Package devices provides the hardware behind a session: a PortAudio
// microphone and speaker and ffmpeg-backed camera and screen grabbers.
package devices

import (
	"encoding/binary"
	"errors"
)

const (
	// InputSampleRate is the microphone rate expected by the live model
	InputSampleRate = 16000
	// OutputSampleRate is the rate of model speech
	OutputSampleRate = 24000
	// Channels is mono audio
	Channels = 1
	// ChunkSize is the number of frames read per microphone buffer
	ChunkSize = 1024

	// DefaultDevice selects the system default device
	DefaultDevice = -1
)

// MIMEAudioInput describes microphone chunks.
const MIMEAudioInput = "audio/pcm;rate=16000"

// ErrAudioUnavailable is returned when the binary was built without audio
// support.
var ErrAudioUnavailable = errors.New("audio support not compiled in (build with -tags portaudio)")

// int16ToBytes converts samples to little-endian PCM16.
func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// bytesToInt16 converts little-endian PCM16 to samples. A trailing odd byte
// is dropped.
func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
