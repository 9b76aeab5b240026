package gmaps

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const unshortenTimeout = 10 * time.Second

// Unshortener resolves shortened maps links to their final URL. It only
// follows redirects for known shortener hosts; anything else is returned
// unchanged.
type Unshortener struct {
	client *http.Client
	hosts  map[string]struct{}
	logger *zap.Logger
}

type UnshortenerOption func(*Unshortener)

func WithHTTPClient(client *http.Client) UnshortenerOption {
	return func(u *Unshortener) {
		u.client = client
	}
}

func WithShortenerHosts(hosts ...string) UnshortenerOption {
	return func(u *Unshortener) {
		u.hosts = make(map[string]struct{}, len(hosts))
		for _, h := range hosts {
			u.hosts[h] = struct{}{}
		}
	}
}

func NewUnshortener(logger *zap.Logger, opts ...UnshortenerOption) *Unshortener {
	ans := Unshortener{
		client: &http.Client{Timeout: unshortenTimeout},
		hosts: map[string]struct{}{
			"maps.app.goo.gl": {},
			"goo.gl":          {},
			"g.co":            {},
		},
		logger: logger,
	}

	for _, opt := range opts {
		opt(&ans)
	}

	return &ans
}

// Unshorten performs a single redirect-following request and returns the
// final URL. Any failure is soft: the original URL comes back unchanged.
func (u *Unshortener) Unshorten(ctx context.Context, rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if _, ok := u.hosts[parsed.Host]; !ok {
		return rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return rawURL
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.Warn("unshorten request failed", zap.String("url", rawURL), zap.Error(err))

		return rawURL
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	return resp.Request.URL.String()
}
