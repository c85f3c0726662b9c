// Package strava adapts the Strava REST API: token refresh and paginated activity listing.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"example.com/stravahub/internal/config"
	"example.com/stravahub/internal/domain"
)

const (
	// DefaultAuthURL is Strava's OAuth token endpoint.
	DefaultAuthURL = "https://www.strava.com/oauth/token"
	// DefaultBaseURL is the Strava v3 API root.
	DefaultBaseURL = "https://www.strava.com/api/v3"
	// DefaultPageSize matches what the sync requests per page.
	DefaultPageSize = 50
)

// CredentialsFunc supplies the client id and secret at call time.
type CredentialsFunc func() (config.Credentials, error)

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for both endpoints.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAuthURL overrides the token endpoint.
func WithAuthURL(u string) Option {
	return func(c *Client) {
		c.authURL = u
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithCredentials overrides where the client id and secret come from.
func WithCredentials(fn CredentialsFunc) Option {
	return func(c *Client) {
		c.credentials = fn
	}
}

// WithLogger overrides the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to Strava. It performs no retries; every failure is returned to the caller.
type Client struct {
	httpClient  *http.Client
	authURL     string
	baseURL     string
	credentials CredentialsFunc
	logger      zerolog.Logger
}

// NewClient constructs a Client reading credentials from the environment by default.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		authURL:     DefaultAuthURL,
		baseURL:     DefaultBaseURL,
		credentials: config.StravaCredentials,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshToken exchanges the long-lived refresh token for a short-lived access token with one POST.
// Failures come back as *domain.AuthError with the raw response body attached.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	creds, err := c.credentials()
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.authURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	rec := &recordingTransport{base: c.httpClient.Transport}
	hc := &http.Client{Transport: rec, Timeout: c.httpClient.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		status, body := rec.last()
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
			body = retrieveErr.Body
		}
		c.logger.Warn().Int("status", status).Bytes("payload", body).Msg("strava token refresh failed")
		return nil, &domain.AuthError{Status: status, Payload: body, Err: err}
	}

	c.logger.Debug().Time("expiry", token.Expiry).Msg("strava access token refreshed")
	return token, nil
}

// FetchActivitiesPage issues one GET for the given 1-based page. An error object in the response is
// returned as *domain.APIError; an empty list is a successful, empty page.
func (c *Client) FetchActivitiesPage(ctx context.Context, accessToken string, page, perPage int) ([]Activity, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if perPage <= 0 {
		perPage = DefaultPageSize
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	endpoint := c.baseURL + "/athlete/activities?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch activities page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read activities page %d: %w", page, err)
	}

	activities, err := decodePage(page, resp.StatusCode, body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Int("page", page).Int("count", len(activities)).Msg("fetched strava activities page")
	return activities, nil
}

func decodePage(page, status int, body []byte) ([]Activity, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' && status < http.StatusMultipleChoices {
		var activities []Activity
		if err := json.Unmarshal(trimmed, &activities); err != nil {
			return nil, fmt.Errorf("decode activities page %d: %w", page, err)
		}
		return activities, nil
	}

	apiErr := &domain.APIError{Page: page, Status: status, Payload: body}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var f fault
		if err := json.Unmarshal(trimmed, &f); err == nil {
			apiErr.Message = f.Message
		}
	}
	if apiErr.Message == "" && status >= http.StatusMultipleChoices {
		apiErr.Message = http.StatusText(status)
	}
	return nil, apiErr
}

// recordingTransport keeps the last response of the token exchange so a failed refresh can report
// the payload oauth2 does not expose.
type recordingTransport struct {
	base http.RoundTripper

	mu     sync.Mutex
	status int
	body   []byte
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.status = resp.StatusCode
	t.body = body
	t.mu.Unlock()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (t *recordingTransport) last() (int, []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.body
}
