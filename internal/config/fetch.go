package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/harvestcast/internal/httputil"
	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/metrics"
)

const (
	ftpTimeout      = 30 * time.Second
	fetchMaxElapsed = 2 * time.Minute
	maxTableBytes   = 4 << 20
)

// Fetcher loads table overlays from a local path, an http(s) URL or an
// ftp URL. Remote sources are retried with exponential backoff.
type Fetcher struct {
	client     *http.Client
	log        *logger.Logger
	maxElapsed time.Duration
}

func NewFetcher(log *logger.Logger) *Fetcher {
	return &Fetcher{
		client:     httputil.NewClient(),
		log:        log.With("component", "tables"),
		maxElapsed: fetchMaxElapsed,
	}
}

// Fetch reads source and overlays it on base. An empty source returns base
// unchanged.
func (f *Fetcher) Fetch(ctx context.Context, base *Tables, source string) (*Tables, error) {
	if source == "" {
		return base, nil
	}

	data, err := f.read(ctx, source)
	if err != nil {
		return nil, err
	}

	var overlay Tables
	if err := decodeOverlay(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode %s: %w", redact(source), err)
	}

	merged := *base
	merged.Merge(&overlay)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("tables from %s: %w", redact(source), err)
	}
	f.log.Info("loaded baseline tables", "source", redact(source), "crops", len(merged.Baselines))
	return &merged, nil
}

func (f *Fetcher) read(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		path := source
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tables: %w", err)
		}
		return data, nil
	}

	var data []byte
	switch u.Scheme {
	case "http", "https":
		data, err = httputil.Fetch(ctx, f.client, source, f.maxElapsed)
	case "ftp":
		data, err = f.readFTP(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported tables source scheme %q", u.Scheme)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BaselineFetches.WithLabelValues(u.Scheme, status).Inc()
	return data, err
}

func (f *Fetcher) readFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	var body []byte
	operation := func() error {
		conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(user, pass); err != nil {
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}

		resp, err := conn.Retr(u.Path)
		if err != nil {
			return fmt.Errorf("ftp retr: %w", err)
		}
		defer resp.Close()

		body, err = io.ReadAll(io.LimitReader(resp, maxTableBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// redact drops credentials from a source URL before it is logged.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.User == nil {
		return source
	}
	return u.Redacted()
}
