package audio

import "encoding/binary"

// Container layout constants for the PCM output.
const (
	WAVHeaderSize = 44
	WAVBitDepth   = 16
	wavFmtSize    = 16
	wavFormatPCM  = 1
)

// EncodeWAV packs the buffer into a canonical RIFF/WAVE container with a
// single 16-bit PCM data chunk. Samples are clamped to [-1, 1] and scaled
// asymmetrically so that -1 maps to -32768 and 1 to 32767.
func EncodeWAV(b *Buffer) []byte {
	channels := b.NumChannels()
	frames := b.Len()
	blockAlign := channels * WAVBitDepth / 8
	dataLen := frames * blockAlign

	out := make([]byte, WAVHeaderSize+dataLen)
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], wavFmtSize)
	le.PutUint16(out[20:22], wavFormatPCM)
	le.PutUint16(out[22:24], uint16(channels))
	le.PutUint32(out[24:28], uint32(b.SampleRate))
	le.PutUint32(out[28:32], uint32(b.SampleRate*blockAlign))
	le.PutUint16(out[32:34], uint16(blockAlign))
	le.PutUint16(out[34:36], WAVBitDepth)
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(dataLen))

	pos := WAVHeaderSize
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			le.PutUint16(out[pos:pos+2], uint16(FloatToPCM16(b.Channels[c][i])))
			pos += 2
		}
	}
	return out
}

// FloatToPCM16 converts one sample to signed 16-bit, truncating toward zero.
func FloatToPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// PCM16ToFloat is the inverse of FloatToPCM16 up to quantisation.
func PCM16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}
