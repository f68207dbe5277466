// Package api is the HTTP client for the chat server's REST endpoints.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/chatlink/client/internal/errors"
	"github.com/chatlink/client/internal/state"
)

// UserInfoPath is the profile endpoint.
const UserInfoPath = "/capi/user/userInfo"

// maxBodyBytes bounds response bodies read from the server.
const maxBodyBytes = 1 << 20

// Result is the server's response envelope.
type Result struct {
	Success bool            `json:"success"`
	ErrCode int             `json:"errCode,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// UserInfo is the profile endpoint's payload.
type UserInfo struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Avatar           string `json:"avatar"`
	Sex              int    `json:"sex,omitempty"`
	ModifyNameChance int    `json:"modifyNameChance,omitempty"`
}

// Profile converts the payload to the client's profile record.
func (u UserInfo) Profile() state.Profile {
	return state.Profile{UID: u.ID, Name: u.Name, Avatar: u.Avatar}
}

// Client calls the REST API with a bearer credential.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a client for baseURL. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// SetTLSConfig sets the trust configuration for https:// base URLs.
func (c *Client) SetTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		return
	}
	c.http.Transport = &http.Transport{TLSClientConfig: cfg}
}

// UserInfo fetches the profile of the user owning token.
// Every failure is a session.profile_failed error.
func (c *Client) UserInfo(ctx context.Context, token string) (state.Profile, error) {
	var info UserInfo
	if err := c.get(ctx, UserInfoPath, token, &info); err != nil {
		return state.Profile{}, apperrors.ProfileFailed(err)
	}
	c.logger.Debug().Int64("uid", info.ID).Msg("fetched profile")
	return info.Profile(), nil
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if !result.Success {
		msg := result.ErrMsg
		if msg == "" {
			msg = "request rejected"
		}
		return fmt.Errorf("GET %s: %s (code %d)", path, msg, result.ErrCode)
	}
	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
