package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	logx "webnotifier/pkg/logx"
)

// DefaultUserAgent identifies as a mobile browser; many boards serve a
// lighter list page to it.
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 10_3_1 like Mac OS X) AppleWebKit/603.1.30 (KHTML, like Gecko) Version/10.0 Mobile/14E304 Safari/602.1"

const defaultMaxBodyBytes = 8 << 20

var ErrHTTPStatus = errors.New("unexpected http status")

// Fetcher returns the raw text of the page at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type HTTPConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPFetcher performs a single GET per call; it never retries.
type HTTPFetcher struct {
	cfg    HTTPConfig
	client *http.Client
	log    logx.Logger
}

func NewHTTPFetcher(cfg HTTPConfig, log logx.Logger) *HTTPFetcher {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPFetcher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: log}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("fetch %s: %w: %d", url, ErrHTTPStatus, resp.StatusCode)
	}

	// Decode to UTF-8 using the Content-Type header or the page's <meta charset>.
	body, err := charset.NewReader(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", url, err)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	f.log.Debug("page fetched",
		logx.String("url", url),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(b)),
		logx.Duration("took", time.Since(started)),
	)
	return string(b), nil
}
