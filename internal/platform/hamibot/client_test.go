package hamibot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest captures what the fake provider saw for one call.
type recordedRequest struct {
	Method  string
	Path    string
	Auth    string
	Payload runPayload
}

// fakeProvider is an httptest-backed provider that replies with a scripted
// status sequence and records every request.
type fakeProvider struct {
	mu       sync.Mutex
	statuses []int
	requests []recordedRequest
	server   *httptest.Server
}

func newFakeProvider(t *testing.T, statuses ...int) *fakeProvider {
	t.Helper()

	p := &fakeProvider{statuses: statuses}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The handler runs on a server goroutine, so failures are
		// surfaced through the recorded requests, not assertions here.
		body, _ := io.ReadAll(r.Body)

		var payload runPayload
		_ = json.Unmarshal(body, &payload)

		p.mu.Lock()
		p.requests = append(p.requests, recordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Auth:    r.Header.Get("Authorization"),
			Payload: payload,
		})
		status := http.StatusNoContent
		if len(p.statuses) > 0 {
			status = p.statuses[0]
			p.statuses = p.statuses[1:]
		}
		p.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(p.server.Close)

	return p
}

func (p *fakeProvider) recorded() []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedRequest(nil), p.requests...)
}

// newTestClient builds a Client against the fake provider with retry
// sleeps replaced by a recorder.
func newTestClient(p *fakeProvider, sleeps *[]time.Duration) *Client {
	client := NewClient(Config{
		BaseURL:    p.server.URL,
		Token:      "hmb_test_token",
		ScriptID:   "script123",
		DeviceID:   "device456",
		DeviceName: "test-device",
	}, nil)

	client.retry.sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}

	return client
}

func TestClientRunScript(t *testing.T) {
	provider := newFakeProvider(t)
	client := newTestClient(provider, nil)

	err := client.RunScript(context.Background(), "https://cdn.example.com/a.mp4", "a")
	require.NoError(t, err)

	requests := provider.recorded()
	require.Len(t, requests, 1)

	req := requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v1/scripts/script123/run", req.Path)
	assert.Equal(t, "hmb_test_token", req.Auth)

	require.Len(t, req.Payload.Devices, 1)
	assert.Equal(t, "device456", req.Payload.Devices[0].ID)
	assert.Equal(t, "test-device", req.Payload.Devices[0].Name)

	require.NotNil(t, req.Payload.Vars)
	assert.Equal(t, "https://cdn.example.com/a.mp4", req.Payload.Vars.RemoteURL)
	assert.Equal(t, "a", req.Payload.Vars.Speed)
}

func TestClientStopScript(t *testing.T) {
	provider := newFakeProvider(t)
	client := newTestClient(provider, nil)

	err := client.StopScript(context.Background(), "https://cdn.example.com/a.mp4", "b")
	require.NoError(t, err)

	requests := provider.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodDelete, requests[0].Method)
	require.NotNil(t, requests[0].Payload.Vars)
	assert.Equal(t, "b", requests[0].Payload.Vars.Speed)
}

func TestClientStopDevice(t *testing.T) {
	provider := newFakeProvider(t)
	client := newTestClient(provider, nil)

	err := client.StopDevice(context.Background())
	require.NoError(t, err)

	requests := provider.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodDelete, requests[0].Method)
	assert.Nil(t, requests[0].Payload.Vars)
}

func TestClientRateLimitBackoff(t *testing.T) {
	// Three 429s, then success: waits must double each time.
	provider := newFakeProvider(t,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusNoContent)

	var sleeps []time.Duration
	client := newTestClient(provider, &sleeps)

	err := client.RunScript(context.Background(), "https://cdn.example.com/a.mp4", "a")
	require.NoError(t, err)

	assert.Len(t, provider.recorded(), 4)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
}

func TestClientServerErrorFlatBackoff(t *testing.T) {
	provider := newFakeProvider(t, http.StatusInternalServerError, http.StatusNoContent)

	var sleeps []time.Duration
	client := newTestClient(provider, &sleeps)

	err := client.RunScript(context.Background(), "https://cdn.example.com/a.mp4", "a")
	require.NoError(t, err)

	assert.Len(t, provider.recorded(), 2)
	assert.Equal(t, []time.Duration{1 * time.Second}, sleeps)
}

func TestClientClientErrorNoRetry(t *testing.T) {
	provider := newFakeProvider(t, http.StatusForbidden)
	client := newTestClient(provider, nil)

	err := client.RunScript(context.Background(), "https://cdn.example.com/a.mp4", "a")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))

	// One request, no retries
	assert.Len(t, provider.recorded(), 1)
}

func TestClientRetriesExhausted(t *testing.T) {
	provider := newFakeProvider(t,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError)

	var sleeps []time.Duration
	client := newTestClient(provider, &sleeps)

	err := client.RunScript(context.Background(), "https://cdn.example.com/a.mp4", "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))

	assert.Len(t, provider.recorded(), 5)
	assert.Len(t, sleeps, 4)
}
