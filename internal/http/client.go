// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package http provides the JSON client used by network position lookups.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"time"

	"github.com/wneessen/arrival-alarm/internal/logger"
)

// DefaultTimeout bounds a request when the caller passes no timeout.
const DefaultTimeout = time.Second * 10

var (
	// version is set at build time
	version = "dev"
	// UserAgent is sent with every lookup request
	UserAgent = fmt.Sprintf("arrival-alarm/%s (%s; %s; +https://github.com/wneessen/arrival-alarm/)",
		version, runtime.GOOS, runtime.GOARCH)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// Client wraps the stdlib http.Client. Its Transport may be replaced in tests.
type Client struct {
	*http.Client
	logger *logger.Logger
}

// New returns a client that requires TLS 1.2 or newer.
func New(log *logger.Logger) *Client {
	transport := &http.Transport{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}}
	return &Client{&http.Client{Timeout: DefaultTimeout, Transport: transport}, log}
}

// PostJSON sends payload as JSON to endpoint and decodes the JSON response into target. Responses with
// a status of 400 or above fail with ErrUnexpectedStatus. The returned int is the HTTP status code.
func (h *Client) PostJSON(ctx context.Context, endpoint string, payload, target any, timeout time.Duration) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return 0, fmt.Errorf("failed to encode request payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header.Set("User-Agent", UserAgent)
	request.Header.Set("Content-Type", "application/json")

	response, err := h.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			h.logger.Error("failed to close HTTP response body", logger.Err(err))
		}
	}()

	if response.StatusCode >= http.StatusBadRequest {
		return response.StatusCode, fmt.Errorf("%w: %s", ErrUnexpectedStatus, response.Status)
	}
	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return response.StatusCode, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return response.StatusCode, nil
}
