package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// FetcherOption configures the Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for remote clips.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithBlobStore lets the fetcher resolve "blob:" handles.
func WithBlobStore(s *BlobStore) FetcherOption {
	return func(f *Fetcher) {
		f.blobs = s
	}
}

// Fetcher retrieves raw clip bytes from http(s), file and blob URLs.
// It never retries; callers decide.
type Fetcher struct {
	client *http.Client
	blobs  *BlobStore
	log    *logger.Logger
}

// NewFetcher creates a fetcher with a 30s HTTP timeout.
func NewFetcher(log *logger.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the bytes at rawURL. Failures are *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if IsBlobURL(rawURL) {
		if f.blobs == nil {
			return nil, &domain.FetchError{URL: rawURL, Err: errors.New("no blob store configured")}
		}
		data, err := f.blobs.Open(rawURL)
		if err != nil {
			return nil, &domain.FetchError{URL: rawURL, Err: err}
		}
		return data, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "file":
		return f.readFile(rawURL, u.Path)
	case "":
		return f.readFile(rawURL, rawURL)
	default:
		return nil, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	f.log.Debug("fetched %d bytes from %s", len(data), rawURL)
	return data, nil
}

func (f *Fetcher) readFile(rawURL, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	return data, nil
}

// ClipLoader fetches and decodes a clip in one step.
type ClipLoader interface {
	FetchAndDecode(ctx context.Context, url string) (*Buffer, error)
}

// Compile-time interface check.
var _ ClipLoader = (*Loader)(nil)

// Loader combines a Fetcher and a Decoder.
type Loader struct {
	fetcher *Fetcher
	decoder Decoder
}

// NewLoader creates a loader. A nil decoder means the environment cannot
// decode audio at all.
func NewLoader(fetcher *Fetcher, decoder Decoder) *Loader {
	return &Loader{fetcher: fetcher, decoder: decoder}
}

// CanDecode reports whether a decoder is available.
func (l *Loader) CanDecode() bool { return l.decoder != nil }

// FetchAndDecode retrieves url and decodes it.
func (l *Loader) FetchAndDecode(ctx context.Context, url string) (*Buffer, error) {
	if l.decoder == nil {
		return nil, domain.ErrUnsupportedEnvironment
	}
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return l.decoder.Decode(data)
}
