package providers

import (
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response body is read
const maxErrorBody = 1 << 20

// ErrorBodyParser converts a non-2xx response body into a ProviderError
type ErrorBodyParser func(statusCode int, body []byte) error

// NewHTTPClient returns a client for adapters. The timeout bounds the wait
// for response headers only, so long streams are not cut off mid-flight.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

// Send executes req and returns the response when its status is 2xx.
// Transport failures are tagged by KindForTransport; other statuses are
// handed to parse after the body has been read and closed.
func Send(client *http.Client, provider string, req *http.Request, parse ErrorBodyParser) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewProviderError(provider, KindForTransport(err), "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, NewProviderError(provider, KindForStatus(resp.StatusCode), "READ_ERROR", "Failed to read response", resp.StatusCode, err)
	}
	return nil, parse(resp.StatusCode, body)
}
