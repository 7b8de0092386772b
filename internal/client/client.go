// Package client calls a running translation server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/translationtower/internal/language"
	"horse.fit/translationtower/internal/translation"
)

const (
	DefaultBaseURL    = "http://127.0.0.1:8080"
	DefaultAPIVersion = "v1"
	DefaultTimeout    = 300 * time.Second

	maxResponseBytes = 64 << 20
)

// APIError is a non-success jsend envelope.
type APIError struct {
	StatusCode       int
	Status           string
	Message          string
	ValidationErrors map[string]string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("translation server status %d: %s", e.StatusCode, e.Message)
	if len(e.ValidationErrors) == 0 {
		return msg
	}
	fields := make([]string, 0, len(e.ValidationErrors))
	for field, problem := range e.ValidationErrors {
		fields = append(fields, field+": "+problem)
	}
	sort.Strings(fields)
	return msg + " (" + strings.Join(fields, "; ") + ")"
}

type Options struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	apiVersion string
	http       *http.Client
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, apiVersion: apiVersion, http: httpClient}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Translate posts req and returns the translations. Provider failures come
// back as *APIError with status 502.
func (c *Client) Translate(ctx context.Context, req translation.Request) (*translation.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal translate request: %w", err)
	}

	var resp translation.Response
	if err := c.do(ctx, http.MethodPost, "/translate", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Languages lists the language table entries a translator supports.
func (c *Client) Languages(ctx context.Context, translator string) ([]language.Entry, error) {
	path := "/languages"
	if name := strings.TrimSpace(translator); name != "" {
		path += "?translator=" + name
	}
	var resp struct {
		Languages []language.Entry `json:"languages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Languages, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	url := fmt.Sprintf("%s/api/%s%s", c.baseURL, c.apiVersion, path)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     "error",
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: env.Status, Message: env.Message}
		var data struct {
			ValidationErrors map[string]string `json:"validation_errors"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
			apiErr.ValidationErrors = data.ValidationErrors
		}
		return apiErr
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
