package serviceauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client performs the service handshake against a remote API.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for handshake requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Challenge requests a fresh nonce for serviceName.
func (c *Client) Challenge(ctx context.Context, serviceName string) (string, error) {
	var out ChallengeResponse
	if err := c.post(ctx, ChallengePath, ChallengeRequest{ServiceName: serviceName}, &out); err != nil {
		return "", err
	}
	return out.Challenge, nil
}

// Redeem submits proofHash for serviceName's outstanding challenge.
func (c *Client) Redeem(ctx context.Context, serviceName, proofHash string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, TokenPath, TokenRequest{ServiceName: serviceName, ChallengeHash: proofHash}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate runs the full handshake and returns the issued token.
func (c *Client) Authenticate(ctx context.Context, serviceName string, secret []byte) (*TokenResponse, error) {
	n, err := c.Challenge(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	return c.Redeem(ctx, serviceName, ComputeProof(n, secret))
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return decodeError(res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HTTPError is returned for non-200 handshake responses whose code does not
// map to one of the package's sentinel errors.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("serviceauth: http %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("serviceauth: http %d", e.StatusCode)
}

func decodeError(res *http.Response) error {
	var env ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	_ = json.Unmarshal(raw, &env)
	herr := &HTTPError{StatusCode: res.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	switch env.Error.Code {
	case CodeServiceNotFound:
		return errors.Join(ErrServiceNotFound, herr)
	case CodeChallengeNotFound:
		return errors.Join(ErrChallengeNotFound, herr)
	case CodeInvalidChallengeHash:
		return errors.Join(ErrInvalidChallengeHash, herr)
	}
	return herr
}
