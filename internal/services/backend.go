package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ampora-ai/ampora-web/internal/models"
)

// Backend is a request gateway that calls the video generation backend's chat endpoint.
type Backend struct {
	baseURL *url.URL
	client  *http.Client
}

type backendChatRequest struct {
	Message string `json:"message"`
}

type backendChatResponse struct {
	Response string  `json:"response"`
	VideoURL *string `json:"video_url"`
}

// DefaultBackendTimeout bounds a single chat request to the backend.
const DefaultBackendTimeout = 5 * time.Minute

// NewBackend creates a gateway for the backend at baseURL. Requests taking longer than timeout fail
// with a timeout GatewayError.
func NewBackend(baseURL string, timeout time.Duration) (Backend, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return Backend{}, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Backend{}, fmt.Errorf("invalid backend url %q: scheme and host are required", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}

	return Backend{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SendMessage posts text to the backend, forwarding authToken as a bearer token when present.
func (b Backend) SendMessage(ctx context.Context, text, authToken string) (models.Reply, error) {
	jsonBody, err := json.Marshal(backendChatRequest{Message: text})
	if err != nil {
		return models.Reply{}, fmt.Errorf("error marshaling request: %w", err)
	}

	endpoint := b.baseURL.ResolveReference(&url.URL{Path: "api/chat"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return models.Reply{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.Reply{}, err
		}
		if isTimeoutErr(err) {
			return models.Reply{}, &models.GatewayError{Message: "Request timed out", Timeout: true, Err: err}
		}
		return models.Reply{}, &models.GatewayError{
			Message: "Failed to contact the server. Please try again.",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Reply{}, &models.GatewayError{Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)}
	}

	var res backendChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		if isTimeoutErr(err) {
			return models.Reply{}, &models.GatewayError{Message: "Request timed out", Timeout: true, Err: err}
		}
		return models.Reply{}, &models.GatewayError{
			Message: "The server sent an invalid response.",
			Err:     fmt.Errorf("error decoding response: %w", err),
		}
	}

	reply := models.Reply{Text: res.Response}
	if res.VideoURL != nil && *res.VideoURL != "" {
		reply.ArtifactURL = b.resolve(*res.VideoURL)
	}
	return reply, nil
}

// resolve turns backend-relative media paths into absolute URLs.
func (b Backend) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.baseURL.ResolveReference(u).String()
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
