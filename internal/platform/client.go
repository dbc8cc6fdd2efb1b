package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPError is a non-2xx response from the platform's REST surface.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("platform http %d: %s", e.StatusCode, e.Message)
}

// Group is the platform's canonical group metadata.
type Group struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Owner       string `json:"owner"`
	Description string `json:"desc"`
	Creation    int64  `json:"creation"`
	Restrict    bool   `json:"restrict"`
}

// InstanceStatus is the platform's view of an instance's live channel.
type InstanceStatus struct {
	Instance string `json:"instanceName"`
	State    string `json:"state"`
}

// PairingInfo carries the pairing payload returned by the connect endpoint.
type PairingInfo struct {
	Code   string `json:"code"`
	Base64 string `json:"base64"`
}

// Client talks to the messaging platform's REST API. Every call carries the
// API key header; base URL and key are validated at construction, not per
// request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a Client. Empty baseURL or apiKey is a configuration
// error the caller must treat as fatal at startup.
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("platform base url is empty")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("platform api key is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}, nil
}

// FetchAllGroups lists the instance's groups. The endpoint answers with
// either a bare array or an object wrapping the array under "groups".
func (c *Client) FetchAllGroups(ctx context.Context, instance string) ([]Group, error) {
	path := fmt.Sprintf("/group/fetchAllGroups/%s?getParticipants=false", url.PathEscape(instance))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var groups []Group
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return nil, fmt.Errorf("decode groups: %w", err)
		}
		return groups, nil
	}

	var wrapper struct {
		Groups []Group `json:"groups"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return wrapper.Groups, nil
}

// ConnectionState fetches the instance's connection state.
func (c *Client) ConnectionState(ctx context.Context, instance string) (InstanceStatus, error) {
	body, err := c.get(ctx, fmt.Sprintf("/instance/connectionState/%s", url.PathEscape(instance)))
	if err != nil {
		return InstanceStatus{}, err
	}

	var wrapper struct {
		Instance InstanceStatus `json:"instance"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return InstanceStatus{}, fmt.Errorf("decode connection state: %w", err)
	}
	if wrapper.Instance.Instance == "" {
		wrapper.Instance.Instance = instance
	}
	return wrapper.Instance, nil
}

// Connect asks the platform to (re)connect the instance, returning the
// pairing payload when one is issued.
func (c *Client) Connect(ctx context.Context, instance string) (PairingInfo, error) {
	body, err := c.get(ctx, fmt.Sprintf("/instance/connect/%s", url.PathEscape(instance)))
	if err != nil {
		return PairingInfo{}, err
	}

	var info PairingInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return PairingInfo{}, fmt.Errorf("decode pairing info: %w", err)
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}
