package resolve

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders for DecodeConfig
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
)

// Prober verifies that url loads as a displayable image. It must honour ctx; the
// Resolver gives up on it at the timeout regardless and ignores any late result.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, url string) error

func (f ProbeFunc) Probe(ctx context.Context, url string) error { return f(ctx, url) }

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resolve: %s: unexpected status %d", e.URL, e.Code)
}

// ErrNotImage means the response decoded as no known image format.
var ErrNotImage = errors.New("resolve: not a displayable image")

// HTTPProber GETs the URL and requires a 2xx response whose body starts with a
// decodable image header (GIF, JPEG or PNG). Only the header is read.
type HTTPProber struct {
	Client     *http.Client // nil => http.DefaultClient
	HeaderSize int64        // max bytes read for format sniffing; 0 => 64 KiB
}

var _ Prober = HTTPProber{}

func (p HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "image/*")
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	limit := p.HeaderSize
	if limit <= 0 {
		limit = 64 << 10
	}
	if _, _, err := image.DecodeConfig(io.LimitReader(resp.Body, limit)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotImage, url, err)
	}
	return nil
}
