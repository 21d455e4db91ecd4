package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/mind-engage/mindengage-adaptive/internal/metrics"
)

type Config struct {
	BaseURL string
	Timeout time.Duration

	// Optional OAuth2 client-credentials; used when TokenURL is set.
	TokenURL     string
	ClientID     string
	ClientSecret string

	// RPS caps outgoing calls; 0 disables the limiter.
	RPS   float64
	Burst int
}

type HTTPClient struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *zap.Logger
}

type Option func(*HTTPClient)

func WithMetrics(m *metrics.Metrics) Option { return func(c *HTTPClient) { c.metrics = m } }
func WithLogger(l *zap.Logger) Option       { return func(c *HTTPClient) { c.log = l } }

// WithHTTPClient replaces the transport client; Config.Timeout and the
// OAuth2 settings are ignored.
func WithHTTPClient(h *http.Client) Option { return func(c *HTTPClient) { c.http = h } }

func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("oracle base url %q is not absolute", cfg.BaseURL)
	}
	c := &HTTPClient{
		base: strings.TrimRight(u.String(), "/"),
		log:  zap.NewNop(),
	}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		c.http = cc.Client(context.Background())
	} else {
		c.http = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.http.Timeout = timeout
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type nextResponse struct {
	NextDifficulty *int `json:"next_difficulty"`
}

func (c *HTTPClient) NextDifficulty(ctx context.Context, studentID string) (d int, err error) {
	defer c.observe("next", time.Now(), &err)

	q := url.Values{"student_id": {studentID}}
	var out nextResponse
	if err := c.do(ctx, http.MethodGet, "/question/next?"+q.Encode(), nil, &out); err != nil {
		return 0, err
	}
	if out.NextDifficulty == nil {
		return 0, fmt.Errorf("%w: response has no next_difficulty", ErrUnavailable)
	}
	return *out.NextDifficulty, nil
}

func (c *HTTPClient) SubmitReward(ctx context.Context, studentID string, difficulty int, correct bool) (err error) {
	defer c.observe("answer", time.Now(), &err)
	return c.do(ctx, http.MethodPost, "/answer", map[string]any{
		"student_id": studentID,
		"decision":   strconv.Itoa(difficulty),
		"reward":     correct,
	}, nil)
}

func (c *HTTPClient) Reset(ctx context.Context, studentID string) (err error) {
	defer c.observe("reset", time.Now(), &err)
	return c.do(ctx, http.MethodPost, "/reset", map[string]any{"student_id": studentID}, nil)
}

func (c *HTTPClient) observe(op string, start time.Time, err *error) {
	c.metrics.ObserveOracle(op, *err, time.Since(start))
	if *err != nil {
		c.log.Debug("oracle call failed", zap.String("op", op), zap.Error(*err))
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: %s %s: %s %s", ErrUnavailable, method, path, res.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
