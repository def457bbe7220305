package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// espeak defaults: words per minute and pitch on its 0..99 scale.
const (
	espeakBaseWPM   = 175
	espeakBasePitch = 50
)

// EspeakOption configures the EspeakEngine.
type EspeakOption func(*EspeakEngine)

// WithEspeakBinary sets the synthesizer executable.
func WithEspeakBinary(path string) EspeakOption {
	return func(e *EspeakEngine) {
		e.binary = path
	}
}

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Compile-time interface check.
var _ Engine = (*EspeakEngine)(nil)

// EspeakEngine is the on-device synthesizer, driving espeak-ng. All of its
// voices are local.
type EspeakEngine struct {
	binary string
	run    runFunc
	log    *logger.Logger

	mu     sync.Mutex
	voices []Voice
}

// NewEspeakEngine creates an engine using espeak-ng from PATH.
func NewEspeakEngine(log *logger.Logger, opts ...EspeakOption) *EspeakEngine {
	e := &EspeakEngine{
		binary: "espeak-ng",
		run:    runCommand,
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether the binary can be found.
func (e *EspeakEngine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Name implements Engine.
func (e *EspeakEngine) Name() string { return "espeak" }

// Voices lists installed voices. The list is read once and reused.
func (e *EspeakEngine) Voices(ctx context.Context) ([]Voice, error) {
	e.mu.Lock()
	cached := e.voices
	e.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	out, err := e.run(ctx, e.binary, "--voices")
	if err != nil {
		return nil, fmt.Errorf("listing espeak voices: %w", err)
	}
	voices := parseEspeakVoices(out)
	e.log.Debug("espeak: %d voices installed", len(voices))

	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	return voices, nil
}

// Synthesize implements Engine. Output is WAV.
func (e *EspeakEngine) Synthesize(ctx context.Context, text string, voice Voice, p Prosody) ([]byte, error) {
	p = p.normalized()
	wpm := int(espeakBaseWPM * p.Rate)
	pitch := int(espeakBasePitch * p.Pitch)
	if pitch > 99 {
		pitch = 99
	}

	args := []string{
		"-v", voice.ID,
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(pitch),
		"--stdout",
		text,
	}
	e.log.Debug("espeak: synthesizing %d chars with voice %s (%s)", len(text), voice.ID, p)

	out, err := e.run(ctx, e.binary, args...)
	if err != nil {
		return nil, &domain.SynthesisError{Engine: e.Name(), Voice: voice.ID, Err: err}
	}
	return fixStreamedWAV(out), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// parseEspeakVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		voices = append(voices, Voice{
			ID:     fields[1],
			Name:   strings.ReplaceAll(fields[3], "_", " "),
			Locale: fields[1],
			Local:  true,
			Engine: "espeak",
		})
	}
	return voices
}

// fixStreamedWAV rewrites the RIFF and data chunk sizes. espeak writing to
// a pipe cannot seek back, so it leaves placeholder sizes in the header.
func fixStreamedWAV(wav []byte) []byte {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wav
	}
	le := binary.LittleEndian
	le.PutUint32(wav[4:8], uint32(len(wav)-8))

	// Walk chunks to find the "data" chunk.
	pos := 12
	for pos+8 <= len(wav) {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(le.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			le.PutUint32(wav[pos+4:pos+8], uint32(len(wav)-pos-8))
			return wav
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}
	return wav
}
