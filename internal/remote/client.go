// Package remote talks to the remote policy store on behalf of the agent.
// It is the sync collaborator at the enforcement engine's boundary: it
// turns the store's policy document into per-dimension change events and
// carries the engine's best-effort writes back.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// Client is an HTTP client for the remote policy store, scoped to one
// managed device.
type Client struct {
	baseURL  string
	deviceID string
	token    string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a client for the given device. The token, when
// non-empty, is sent as a bearer credential on every request.
func NewClient(baseURL, deviceID, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		token:    token,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Wire shapes of the remote policy document.

type wireScreenTime struct {
	DailyLimitMinutes int `json:"dailyLimitMinutes"`
	UsedMinutesToday  int `json:"usedMinutesToday"`
}

type wireAppRule struct {
	PackageID         string `json:"packageId"`
	DisplayName       string `json:"displayName"`
	Blocked           bool   `json:"blocked"`
	DailyLimitMinutes int    `json:"dailyLimitMinutes"`
	UsedMinutesToday  int    `json:"usedMinutesToday"`
}

type wireContact struct {
	ContactID   string `json:"contactId"`
	DisplayName string `json:"displayName"`
	PhoneNumber string `json:"phoneNumber"`
	Allowed     bool   `json:"allowed"`
}

type wireGeofence struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	RadiusMeters  float32 `json:"radiusMeters"`
	Active        bool    `json:"active"`
	NotifyOnEnter bool    `json:"notifyOnEnter"`
	NotifyOnExit  bool    `json:"notifyOnExit"`
}

type policyDocument struct {
	IsLocked        bool           `json:"isLocked"`
	ScreenTime      wireScreenTime `json:"screenTime"`
	Apps            []wireAppRule  `json:"apps"`
	Contacts        []wireContact  `json:"contacts"`
	Geofences       []wireGeofence `json:"geofences"`
	RequestLocation bool           `json:"requestLocation"`
}

// FetchPolicy retrieves the device's full policy document.
func (c *Client) FetchPolicy(ctx context.Context) (*policyDocument, error) {
	url := fmt.Sprintf("%s/devices/%s/policy", c.baseURL, c.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy fetch returned %d", resp.StatusCode)
	}

	var doc policyDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed policy document: %w", err)
	}
	return &doc, nil
}

// PublishHeartbeat writes the online flag and lastSeen timestamp.
func (c *Client) PublishHeartbeat(ctx context.Context, online bool) error {
	return c.put(ctx, "status", map[string]any{
		"online":   online,
		"lastSeen": time.Now().UnixMilli(),
	})
}

// PublishPosition writes the current location fix.
func (c *Client) PublishPosition(ctx context.Context, pos domain.Position) error {
	return c.put(ctx, "location", map[string]any{
		"latitude":  pos.Latitude,
		"longitude": pos.Longitude,
		"accuracy":  pos.AccuracyMeters,
		"timestamp": pos.Timestamp.UnixMilli(),
	})
}

// PublishUsage writes aggregated and per-app foreground minutes.
func (c *Client) PublishUsage(ctx context.Context, totalMinutes int, perApp map[string]int) error {
	return c.put(ctx, "usage", map[string]any{
		"totalMinutes": totalMinutes,
		"apps":         perApp,
	})
}

// ClearLocateRequest acknowledges a consumed "locate now" request.
func (c *Client) ClearLocateRequest(ctx context.Context) error {
	return c.put(ctx, "locate", map[string]any{"requested": false})
}

// PublishStatusFlag surfaces an enforcement fault to the administrator.
func (c *Client) PublishStatusFlag(ctx context.Context, flag string) error {
	return c.put(ctx, "flags", map[string]any{"status": flag})
}

func (c *Client) put(ctx context.Context, leaf string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/devices/%s/%s", c.baseURL, c.deviceID, leaf)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s write returned %d", leaf, resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Ensure Client implements domain.SyncClient.
var _ domain.SyncClient = (*Client)(nil)
