package profile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

// HTTPFetcher reads profiles from a GitHub-compatible users endpoint. It
// makes exactly one request per call; retries belong to the job pool.
type HTTPFetcher struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures the fetcher.
type Option func(*HTTPFetcher)

// WithBaseURL sets a custom base URL
func WithBaseURL(u string) Option {
	return func(f *HTTPFetcher) {
		if u != "" {
			f.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithToken sends the token as a bearer credential
func WithToken(token string) Option {
	return func(f *HTTPFetcher) {
		f.token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		if timeout > 0 {
			f.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit caps outgoing requests at perSecond with the given burst.
// Callers block until a token is available or their context ends.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *HTTPFetcher) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		baseURL:    DefaultBaseURL,
		userAgent:  "profilejobs/1.0",
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) Fetch(ctx context.Context, subjectKey string) (*Profile, error) {
	login := strings.TrimSpace(subjectKey)
	if login == "" || strings.ContainsAny(login, "/?#") {
		return nil, profileErrors.New(ErrInvalidKey).WithDetail("subject_key", subjectKey)
	}
	endpoint := f.baseURL + "/users/" + url.PathEscape(login)

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, profileErrors.NewWithCause(ErrRateLimited, err).WithDetail("limiter", "client")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, profileErrors.NewWithCause(ErrUpstream, err).WithDetail("url", endpoint)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, profileErrors.NewWithCause(ErrUpstream, err).WithDetail("url", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, profileErrors.NewWithCause(ErrUpstream, err).WithDetail("url", endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body).WithDetail("subject_key", login)
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, profileErrors.NewWithCause(ErrDecode, err).WithDetail("subject_key", login)
	}
	if p.Login == "" {
		p.Login = login
	}
	p.Raw = json.RawMessage(body)
	return &p, nil
}
