package dataset

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
)

// FetchOptions configures a Fetcher.
type FetchOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerHost limits requests per second to a single host.
	RatePerHost rate.Limit
	Burst       int
	// Backoff is the base delay before the first retry; it doubles per attempt.
	Backoff time.Duration
	Logger  log.Logger
}

// Fetcher downloads CSV datasets over HTTP(S), with a per-host rate limiter
// and bounded retry on transport errors, 5xx and 429 responses.
type Fetcher struct {
	client *http.Client
	opts   FetchOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher returns a Fetcher with defaults filled in.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "tidytune/1.0"
	}
	if opts.RatePerHost == 0 {
		opts.RatePerHost = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 5
	}
	if opts.Backoff == 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch downloads rawURL and parses it with ReadCSV.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, csvOpts CSVOptions) (*Frame, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	frame, err := ReadCSV(body, csvOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", rawURL)
	}
	f.opts.Logger.Info("dataset fetched",
		"url", rawURL,
		log.SamplesKey, frame.NRows(),
		log.FeaturesKey, frame.NCols(),
	)
	return frame, nil
}

// Download returns the body of a successful GET. The caller closes it.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "download")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, errors.Newf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.RatePerHost, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

func (f *Fetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiterFor(req.URL.Host)

	var lastErr error
	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			f.opts.Logger.Warn("http request failed, retrying",
				"url", req.URL.String(),
				"attempt", attempt+1,
				log.ErrAttrKey, err,
			)
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
			f.opts.Logger.Warn("retryable status",
				"url", req.URL.String(),
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
			f.backoff(ctx, attempt)
			continue
		}
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, errors.Wrap(lastErr, "all retries exhausted")
}

func (f *Fetcher) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(f.opts.Backoff) * math.Pow(2, float64(attempt)))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
