package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
)

// Decoder turns an encoded clip into a Buffer.
type Decoder interface {
	Decode(data []byte) (*Buffer, error)
}

var errUnknownFormat = errors.New("unrecognised audio container")

// Compile-time interface check.
var _ Decoder = (*ClipDecoder)(nil)

// ClipDecoder sniffs the container and decodes WAV (integer PCM) and MP3,
// the two formats the TTS pipeline stores.
type ClipDecoder struct{}

// NewDecoder returns the default clip decoder.
func NewDecoder() *ClipDecoder { return &ClipDecoder{} }

// Decode implements Decoder. Failures are *domain.DecodeError.
func (d *ClipDecoder) Decode(data []byte) (*Buffer, error) {
	switch {
	case isWAV(data):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	default:
		return nil, &domain.DecodeError{Err: errUnknownFormat}
	}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, &domain.DecodeError{Format: "wav", Err: errors.New("invalid wav file")}
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, &domain.DecodeError{Format: "wav", Err: fmt.Errorf("unsupported wav format tag %d", dec.WavAudioFormat)}
	}

	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &domain.DecodeError{Format: "wav", Err: err}
	}
	if ib.Format == nil || ib.Format.NumChannels < 1 {
		return nil, &domain.DecodeError{Format: "wav", Err: errors.New("missing channel layout")}
	}
	return fromIntBuffer(ib, int(dec.BitDepth))
}

func fromIntBuffer(ib *goaudio.IntBuffer, bitDepth int) (*Buffer, error) {
	channels := ib.Format.NumChannels
	frames := len(ib.Data) / channels
	out := NewBuffer(channels, frames, ib.Format.SampleRate)

	var convert func(v int) float32
	switch bitDepth {
	case 8:
		convert = func(v int) float32 { return float32(v-128) / 128 }
	case 16:
		convert = func(v int) float32 { return PCM16ToFloat(int16(v)) }
	case 24:
		convert = func(v int) float32 { return float32(v) / 8388608 }
	case 32:
		convert = func(v int) float32 { return float32(float64(v) / 2147483648) }
	default:
		return nil, &domain.DecodeError{Format: "wav", Err: fmt.Errorf("unsupported bit depth %d", bitDepth)}
	}

	for i := 0; i < frames*channels; i++ {
		out.Channels[i%channels][i/channels] = convert(ib.Data[i])
	}
	return out, nil
}

func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.DecodeError{Format: "mp3", Err: err}
	}

	pcm, err := io.ReadAll(dec)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &domain.DecodeError{Format: "mp3", Err: err}
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	frames := len(pcm) / 4
	out := NewBuffer(2, frames, dec.SampleRate())
	for i := 0; i < frames; i++ {
		l := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		r := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		out.Channels[0][i] = PCM16ToFloat(l)
		out.Channels[1][i] = PCM16ToFloat(r)
	}
	return out, nil
}
