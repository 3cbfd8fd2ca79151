package hamibot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultHTTPTimeout bounds a single attempt; the retry policy bounds the
// whole call.
const defaultHTTPTimeout = 30 * time.Second

// Config identifies the provider endpoint and the fixed device/script
// identity every call runs against.
type Config struct {
	BaseURL    string
	Token      string
	ScriptID   string
	DeviceID   string
	DeviceName string
}

// Client talks to the Hamibot automation provider. Both verbs target the
// same script-run resource: DELETE preempts whatever the device is
// running, POST starts a fresh run. The provider acknowledges accepted
// calls with 204 and nothing else.
type Client struct {
	httpClient *http.Client
	config     Config
	retry      retryPolicy
	logger     *slog.Logger
}

// NewClient creates a new Client with the default retry policy.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		config:     cfg,
		retry:      defaultRetryPolicy(),
		logger:     logger,
	}
}

// device is the fixed device identity in the request payload.
type device struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// scriptVars are the per-task variables handed to the automation script.
type scriptVars struct {
	RemoteURL string `json:"remoteUrl"`
	Speed     string `json:"speed"`
}

// runPayload is the request body for both the stop and run calls.
type runPayload struct {
	Devices []device    `json:"devices"`
	Vars    *scriptVars `json:"vars,omitempty"`
}

// RunScript starts the configured script on the configured device with the
// given task variables. Returns nil only on a 204 response.
func (c *Client) RunScript(ctx context.Context, remoteURL, speed string) error {
	return c.call(ctx, http.MethodPost, &scriptVars{RemoteURL: remoteURL, Speed: speed})
}

// StopScript preempts the configured script on the configured device,
// carrying the same variables as the run it precedes. Returns nil only on
// a 204 response.
func (c *Client) StopScript(ctx context.Context, remoteURL, speed string) error {
	return c.call(ctx, http.MethodDelete, &scriptVars{RemoteURL: remoteURL, Speed: speed})
}

// StopDevice preempts the configured script without task variables. Used
// by the stop surface to halt whatever the device is currently running.
func (c *Client) StopDevice(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, nil)
}

// call performs one provider call under the shared retry policy.
func (c *Client) call(ctx context.Context, method string, vars *scriptVars) error {
	payload := runPayload{
		Devices: []device{{ID: c.config.DeviceID, Name: c.config.DeviceName}},
		Vars:    vars,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/scripts/%s/run",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.ScriptID)

	return c.retry.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", c.config.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("hamibot request failed",
				"method", method,
				"error", err)
			return fmt.Errorf("hamibot %s request failed: %w", method, err)
		}
		defer func() {
			// Drain so the connection can be reused
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusNoContent {
			c.logger.Warn("hamibot returned unexpected status",
				"method", method,
				"status", resp.StatusCode)
			return &StatusError{Method: method, StatusCode: resp.StatusCode}
		}

		return nil
	})
}
