package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"
)

// NewHTTPClient returns the cookie-carrying client a provider session owns
// for the duration of a run.
func NewHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}
}

// Response is an HTTP outcome: status plus raw body. Non-200 statuses are
// data, not errors; the caller decides severity.
type Response struct {
	Body   []byte
	Status int
}

// OK reports whether the response status is 200.
func (r *Response) OK() bool {
	return r.Status == http.StatusOK
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Do issues one request with the given header set and optional string
// payload. Transport-level failures are errors; HTTP-level failures come back
// as a Response.
func Do(ctx context.Context, client *http.Client, method, url string, hdrs map[string]string, payload string) (*Response, error) {
	var body io.Reader
	if payload != "" {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// BuildHeaders assembles the header set for one request: the static defaults,
// a content-length when a payload is present, and any accumulated
// credentials. A fresh map is returned every time so no request ever sees a
// previous request's state.
func BuildHeaders(static map[string]string, payload string, creds map[string]string) map[string]string {
	hdrs := make(map[string]string, len(static)+len(creds)+1)
	for k, v := range static {
		hdrs[k] = v
	}
	if payload != "" {
		hdrs["content-length"] = strconv.Itoa(len(payload))
	}
	for k, v := range creds {
		hdrs[k] = v
	}
	return hdrs
}
