// Package daily is a minimal client for the Daily.co REST API.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidasaude/telehealth-core/internal/metrics"
	"github.com/vidasaude/telehealth-core/internal/video"
)

const DefaultBaseURL = "https://api.daily.co/v1"

// Client implements video.Provider against the Daily.co API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

var _ video.Provider = (*Client)(nil)

type roomProperties struct {
	Exp               int64 `json:"exp,omitempty"`
	EnableChat        bool  `json:"enable_chat"`
	EnableScreenshare bool  `json:"enable_screenshare"`
	EnableKnocking    bool  `json:"enable_knocking"`
}

type createRoomBody struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type roomResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Config struct {
		Exp int64 `json:"exp"`
	} `json:"config"`
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Exp      int64  `json:"exp"`
	IsOwner  bool   `json:"is_owner"`
}

type tokenBody struct {
	Properties tokenProperties `json:"properties"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
	Info  string `json:"info"`
}

// statusError is a non-2xx response from the API.
type statusError struct {
	Status int
	Body   errorResponse
}

func (e *statusError) Error() string {
	return fmt.Sprintf("daily returned status %d: %s %s", e.Status, e.Body.Error, e.Body.Info)
}

func (c *Client) GetRoom(ctx context.Context, name string) (*video.Room, error) {
	var resp roomResponse
	err := c.do(ctx, "get_room", http.MethodGet, "/rooms/"+url.PathEscape(name), nil, &resp)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, video.ErrRoomNotFound
		}
		return nil, err
	}
	return resp.toRoom(), nil
}

func (c *Client) CreateRoom(ctx context.Context, req video.CreateRoomRequest) (*video.Room, error) {
	body := createRoomBody{
		Name:    req.Name,
		Privacy: "private",
		Properties: roomProperties{
			EnableChat:        req.EnableChat,
			EnableScreenshare: req.EnableScreenshare,
			EnableKnocking:    req.EnableKnocking,
		},
	}
	if !req.ExpiresAt.IsZero() {
		body.Properties.Exp = req.ExpiresAt.Unix()
	}

	var resp roomResponse
	if err := c.do(ctx, "create_room", http.MethodPost, "/rooms", body, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusBadRequest && strings.Contains(se.Body.Info, "already exists") {
			return nil, video.ErrRoomExists
		}
		return nil, err
	}
	return resp.toRoom(), nil
}

func (c *Client) CreateMeetingToken(ctx context.Context, req video.TokenRequest) (string, error) {
	body := tokenBody{Properties: tokenProperties{
		RoomName: req.RoomName,
		UserID:   req.UserID,
		UserName: req.UserName,
		Exp:      req.ExpiresAt.Unix(),
		IsOwner:  req.IsOwner,
	}}

	var resp tokenResponse
	if err := c.do(ctx, "create_token", http.MethodPost, "/meeting-tokens", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("daily returned an empty meeting token")
	}
	return resp.Token, nil
}

func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	err := c.do(ctx, "delete_room", http.MethodDelete, "/rooms/"+url.PathEscape(name), nil, nil)
	if isStatus(err, http.StatusNotFound) {
		return video.ErrRoomNotFound
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	if c.apiKey == "" {
		return video.ErrMissingAPIKey
	}
	defer func() {
		outcome := metrics.Outcome(err)
		if isStatus(err, http.StatusNotFound) {
			outcome = "not_found"
		}
		metrics.VideoProviderRequests.WithLabelValues(op, outcome).Inc()
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &statusError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if jerr := json.Unmarshal(raw, &se.Body); jerr != nil {
			se.Body.Info = string(raw)
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r roomResponse) toRoom() *video.Room {
	room := &video.Room{Name: r.Name, URL: r.URL}
	if r.Config.Exp > 0 {
		room.ExpiresAt = time.Unix(r.Config.Exp, 0).UTC()
	}
	return room
}

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == status
}
