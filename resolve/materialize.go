package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNoCredential is returned by HTTPMaterializer when called without a credential.
	ErrNoCredential = errors.New("resolve: no materialization credential")
	// ErrStatus wraps non-2xx responses of the media endpoint.
	ErrStatus = errors.New("resolve: media fetch failed")
	// ErrTooLarge means the media body exceeded MaxBytes.
	ErrTooLarge = errors.New("resolve: media body too large")
)

// Payload is the raw image fetched by a Materializer.
type Payload struct {
	Data        []byte
	ContentType string
}

// Materializer fetches the raw bytes of id using credential. One attempt, no retries.
type Materializer interface {
	Materialize(ctx context.Context, id, credential string) (Payload, error)
}

// MaterializeFunc adapts a function to Materializer.
type MaterializeFunc func(ctx context.Context, id, credential string) (Payload, error)

func (f MaterializeFunc) Materialize(ctx context.Context, id, credential string) (Payload, error) {
	return f(ctx, id, credential)
}

// HTTPMaterializer GETs the media endpoint of Endpoints.
type HTTPMaterializer struct {
	Client    *http.Client // nil => http.DefaultClient
	Endpoints Endpoints
	MaxBytes  int64 // 0 => 32 MiB
}

var _ Materializer = HTTPMaterializer{}

func (m HTTPMaterializer) Materialize(ctx context.Context, id, credential string) (Payload, error) {
	if credential == "" {
		return Payload{}, ErrNoCredential
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, MediaURL(m.Endpoints, id, credential), nil)
	if err != nil {
		return Payload{}, err
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Payload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return Payload{}, fmt.Errorf("%w: status %d", ErrStatus, resp.StatusCode)
	}

	limit := m.MaxBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Payload{}, err
	}
	if int64(len(data)) > limit {
		return Payload{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Payload{Data: data, ContentType: ct}, nil
}
