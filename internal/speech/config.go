package speech

import "fmt"

// DefaultVoice is the neural voice new projects are generated with.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// DefaultAudioFormat is the format requested from Azure: 24 kHz mono
// 16-bit PCM in a RIFF container, which the clip decoder reads directly.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Env var names for Azure Speech credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

// Prosody scales speaking rate and pitch. 1.0 is the engine default for
// both.
type Prosody struct {
	Rate  float64
	Pitch float64
}

// DefaultProsody is normal rate and pitch.
var DefaultProsody = Prosody{Rate: 1, Pitch: 1}

func (p Prosody) normalized() Prosody {
	if p.Rate <= 0 {
		p.Rate = 1
	}
	if p.Pitch <= 0 {
		p.Pitch = 1
	}
	return p
}

func (p Prosody) String() string {
	p = p.normalized()
	return fmt.Sprintf("rate=%.2f pitch=%.2f", p.Rate, p.Pitch)
}
