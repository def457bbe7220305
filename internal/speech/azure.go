package speech

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithEndpoint overrides the regional base URL.
func WithEndpoint(baseURL string) AzureOption {
	return func(c *AzureClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// Compile-time interface check.
var _ Engine = (*AzureClient)(nil)

// AzureClient synthesizes speech via Azure Cognitive Services. Its voices
// are remote.
type AzureClient struct {
	subscriptionKey string
	baseURL         string
	format          string
	httpClient      *http.Client
	log             *logger.Logger

	mu     sync.Mutex
	voices []Voice
}

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		baseURL:         fmt.Sprintf("https://%s.tts.speech.microsoft.com", region),
		format:          DefaultAudioFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Engine.
func (c *AzureClient) Name() string { return "azure" }

type azureVoice struct {
	ShortName   string `json:"ShortName"`
	DisplayName string `json:"DisplayName"`
	Locale      string `json:"Locale"`
}

// Voices lists the region's voices. The list is fetched once and reused.
func (c *AzureClient) Voices(ctx context.Context) ([]Voice, error) {
	c.mu.Lock()
	cached := c.voices
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure voice list error %d: %s", resp.StatusCode, string(body))
	}

	var raw []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding voice list: %w", err)
	}

	voices := make([]Voice, 0, len(raw))
	for _, v := range raw {
		voices = append(voices, Voice{
			ID:     v.ShortName,
			Name:   v.DisplayName,
			Locale: v.Locale,
			Engine: c.Name(),
		})
	}
	c.log.Debug("azure tts: %d voices available", len(voices))

	c.mu.Lock()
	c.voices = voices
	c.mu.Unlock()
	return voices, nil
}

// Synthesize converts text to speech audio data (WAV bytes).
func (c *AzureClient) Synthesize(ctx context.Context, text string, voice Voice, p Prosody) ([]byte, error) {
	ssml := buildSSML(text, voice, p)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s (%s)", len(text), voice.ID, p)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, c.fail(voice, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "MyAffirms/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(voice, fmt.Errorf("tts request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, c.fail(voice, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body)))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(voice, fmt.Errorf("reading audio data: %w", err))
	}

	c.log.Debug("azure tts: got %d bytes of audio", len(audioData))
	return audioData, nil
}

func (c *AzureClient) fail(voice Voice, err error) error {
	return &domain.SynthesisError{Engine: c.Name(), Voice: voice.ID, Err: err}
}

// buildSSML creates SSML markup for the synthesis request. Rate and pitch
// are expressed as relative percentages.
func buildSSML(text string, voice Voice, p Prosody) string {
	p = p.normalized()
	lang := voice.Locale
	if lang == "" {
		lang = "en-US"
	}

	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(text))

	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><prosody rate='%+.0f%%' pitch='%+.0f%%'>%s</prosody></voice></speak>`,
		lang, lang, voice.ID, (p.Rate-1)*100, (p.Pitch-1)*100, escaped.String(),
	)
}
