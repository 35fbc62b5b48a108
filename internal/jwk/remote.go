package jwk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/uaagate/internal/idpconfig"
)

const maxKeySetBytes = 1 << 20

// ErrKeySetTooLarge se devuelve cuando un endpoint responde más de maxKeySetBytes.
var ErrKeySetTooLarge = errors.New("jwk: key set too large")

// RemoteLoader hace GET de cada jwksEndpoint en paralelo, acotado por timeout.
type RemoteLoader struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewRemoteBuilder devuelve un LoaderBuilder que comparte el http.Client por tenant.
func NewRemoteBuilder(timeout time.Duration) LoaderBuilder {
	return func(string) (Loader, error) {
		return &RemoteLoader{Client: &http.Client{Timeout: timeout}, Timeout: timeout}, nil
	}
}

func (l *RemoteLoader) FetchRawKeySets(ctx context.Context, clients []idpconfig.ClientConfig) ([][]byte, error) {
	endpoints := make([]string, 0, len(clients))
	seen := make(map[string]bool, len(clients))
	for _, c := range clients {
		if c.JwksEndpoint == "" || seen[c.JwksEndpoint] {
			continue
		}
		seen[c.JwksEndpoint] = true
		endpoints = append(endpoints, c.JwksEndpoint)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("jwk: no remote endpoints configured")
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	out := make([][]byte, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			b, err := l.get(gctx, ep)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *RemoteLoader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwk: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("jwk: fetch %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("jwk: read %s: %w", url, err)
	}
	if len(b) > maxKeySetBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrKeySetTooLarge, url, maxKeySetBytes)
	}
	return b, nil
}
