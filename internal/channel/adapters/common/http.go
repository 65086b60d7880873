// Package common holds helpers shared by the provider adapters.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/converso/gateway/internal/channel"
)

const maxResponseBytes int64 = 1 << 20 // 1 MiB

// JSONRequest performs one HTTP round trip with a JSON body and returns
// the status code and response body. Transport failures come back as
// channel network errors; non-2xx statuses are left to the caller, which
// knows the provider's error shape.
func JSONRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, channel.NewNetworkError(err, "request %s failed", url)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, channel.NewNetworkError(err, "read response from %s", url)
	}
	return resp.StatusCode, respBody, nil
}

// ProviderMessage extracts a human-readable error message from a provider
// response body, falling back to the raw body.
func ProviderMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		ErrorText string `json:"error_text"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.ErrorText != "" {
			return envelope.ErrorText
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
