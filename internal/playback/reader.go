package playback

import (
	"encoding/binary"
	"io"

	"github.com/gopxl/beep/v2"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
)

// bytesPerFrame is one stereo frame of signed 16-bit little-endian PCM.
const bytesPerFrame = 4

// streamReader adapts a beep.Streamer to the io.Reader oto pulls from.
type streamReader struct {
	s    beep.Streamer
	buf  [][2]float64
	done bool
}

func newStreamReader(s beep.Streamer) *streamReader {
	return &streamReader{s: s}
}

func (r *streamReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make([][2]float64, frames)
	}
	buf := r.buf[:frames]

	n, ok := r.s.Stream(buf)
	if !ok {
		r.done = true
	}
	if n == 0 {
		r.done = true
		if err := r.s.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	le := binary.LittleEndian
	for i := 0; i < n; i++ {
		le.PutUint16(p[i*4:], uint16(audio.FloatToPCM16(float32(buf[i][0]))))
		le.PutUint16(p[i*4+2:], uint16(audio.FloatToPCM16(float32(buf[i][1]))))
	}
	return n * bytesPerFrame, nil
}
