package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/usherhq/usher/internal/api/presenter"
	"github.com/usherhq/usher/internal/hawk"
)

var ErrNoTicket = fmt.Errorf("client holds no ticket")

type APIError struct {
	CorrelationID string
	StatusCode    int
	Message       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("api error: '%s' (status %d, correlation: %s)", e.Message, e.StatusCode, e.CorrelationID)
}

// request builds, signs and executes a request. cred may be nil for the few
// unauthenticated endpoints.
func (c *Client) request(ctx context.Context, method, path string, cred *hawk.Credential, payload, result any) (string, error) {
	var (
		body      []byte
		bodyIn    io.Reader
		contentCT string
	)
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return "", fmt.Errorf("marshaling payload: %w", err)
		}
		bodyIn = bytes.NewReader(body)
		contentCT = "application/json"
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyIn)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if contentCT != "" {
		req.Header.Set("Content-Type", contentCT)
	}

	if cred != nil {
		if err := signRequest(req, cred, body); err != nil {
			return "", fmt.Errorf("signing request: %w", err)
		}
	}
	return c.do(req, result)
}

// signRequest attaches the Authorization header for the request.
func signRequest(req *http.Request, cred *hawk.Credential, body []byte) error {
	nonce, err := hawk.Nonce()
	if err != nil {
		return err
	}
	host, port := urlHostPort(req)
	attrs := hawk.RequestAttributes{
		Method:    req.Method,
		Host:      host,
		Port:      port,
		Path:      req.URL.RequestURI(),
		Timestamp: time.Now().Unix(),
		Nonce:     nonce,
	}
	if len(body) > 0 {
		attrs.Hash = hawk.PayloadHash(req.Header.Get("Content-Type"), body)
	}
	header, err := hawk.Sign(cred, attrs)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", header)
	return nil
}

func urlHostPort(req *http.Request) (string, string) {
	host, port, err := net.SplitHostPort(req.URL.Host)
	if err != nil {
		host = req.URL.Host
		if req.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return host, port
}

func (c *Client) do(req *http.Request, result any) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return correlationFromResponse(resp), parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return correlationFromResponse(resp), fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return correlationFromResponse(resp), nil
}

func parseErrorResponse(resp *http.Response) error {
	var errResp presenter.ErrorResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d and unreadable body: %w", resp.StatusCode, err)
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return APIError{
			CorrelationID: errResp.CorrelationID,
			StatusCode:    resp.StatusCode,
			Message:       errResp.Error,
		}
	}
	return fmt.Errorf("api error: *unparsed '%s' (status %d)", string(body), resp.StatusCode)
}

func correlationFromResponse(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Header.Get("X-Correlation-ID")
}
