package videosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	PermissionJoin   = "allow_join"
	PermissionMod    = "allow_mod"
	PermissionRecord = "allow_record"

	defaultEndpoint = "https://api.videosdk.live/v2"
	requestTimeout  = 10 * time.Second
)

// Meeting is the provider's answer to a room creation request.
type Meeting struct {
	MeetingID string
	Token     string
	JoinURL   string
}

// Client talks to the VideoSDK REST API. Tokens are short-lived HS256
// JWTs carrying the API key and the requested permissions.
type Client struct {
	apiKey      string
	secretKey   string
	endpoint    string
	frontendURL string
	webhookURL  string
	http        *http.Client
	logger      *zap.Logger
}

func NewClientFromEnv(logger *zap.Logger) *Client {
	endpoint := os.Getenv("VIDEOSDK_API_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	var webhookURL string
	if backend := os.Getenv("BACKEND_URL"); backend != "" {
		webhookURL = backend + "/api/v1/videosdk/webhook"
	}
	return &Client{
		apiKey:      os.Getenv("VIDEOSDK_API_KEY"),
		secretKey:   os.Getenv("VIDEOSDK_SECRET_KEY"),
		endpoint:    endpoint,
		frontendURL: os.Getenv("FRONTEND_URL"),
		webhookURL:  webhookURL,
		http:        &http.Client{Timeout: requestTimeout},
		logger:      logger,
	}
}

// GenerateToken mints a provider token with the given permissions. Full
// permissions when none are specified.
func (c *Client) GenerateToken(permissions []string, durationHours int) (string, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return "", apperrors.NotConfigured("VideoSDK API credentials are not set")
	}
	if len(permissions) == 0 {
		permissions = []string{PermissionJoin, PermissionMod, PermissionRecord}
	}
	if durationHours <= 0 {
		durationHours = 24
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"apikey":      c.apiKey,
		"permissions": permissions,
		"version":     2,
		"roles":       []string{"crawler"},
		"iat":         now.Unix(),
		"exp":         now.Add(time.Duration(durationHours) * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", apperrors.Internal("signing VideoSDK token", err)
	}
	return signed, nil
}

// CreateMeeting creates a provider room and returns the meeting handle
// plus the public join URL on our frontend.
func (c *Client) CreateMeeting(ctx context.Context, description string, durationMinutes int) (*Meeting, error) {
	token, err := c.GenerateToken(nil, 24)
	if err != nil {
		return nil, err
	}

	customID := fmt.Sprintf("devmentor_%s", uuid.NewString())
	body := map[string]interface{}{
		"customRoomId":       customID,
		"description":        description,
		"autoStartRecording": false,
		"chatEnabled":        true,
		"screenShareEnabled": true,
		"whiteboardEnabled":  true,
	}
	if c.webhookURL != "" {
		body["webhookUrl"] = c.webhookURL
	}

	var resp struct {
		RoomID string `json:"roomId"`
	}
	if err := c.post(ctx, "/rooms", token, body, &resp); err != nil {
		return nil, err
	}
	if resp.RoomID == "" {
		return nil, apperrors.ExternalService("provider returned no room ID", nil)
	}

	return &Meeting{
		MeetingID: resp.RoomID,
		Token:     token,
		JoinURL:   fmt.Sprintf("%s/join/%s", c.frontendURL, resp.RoomID),
	}, nil
}

// StartRecording asks the provider to begin HLS recording for the room.
// The returned ID identifies the recording job when the provider has one
// ready synchronously; the webhook remains authoritative for final state.
func (c *Client) StartRecording(ctx context.Context, meetingID string) (string, error) {
	token, err := c.GenerateToken([]string{PermissionRecord}, 1)
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"roomId": meetingID,
		"config": map[string]interface{}{
			"layout":      map[string]interface{}{"type": "GRID", "priority": "SPEAKER", "gridSize": 25},
			"orientation": "landscape",
			"mode":        "video-and-audio",
			"quality":     "high",
			"recording":   map[string]interface{}{"enabled": true},
		},
	}
	if c.webhookURL != "" {
		body["webhookUrl"] = c.webhookURL
	}

	var resp struct {
		SessionID string `json:"sessionId"`
		ID        string `json:"id"`
	}
	if err := c.post(ctx, "/hls/start", token, body, &resp); err != nil {
		return "", err
	}
	if resp.SessionID != "" {
		return resp.SessionID, nil
	}
	return resp.ID, nil
}

func (c *Client) StopRecording(ctx context.Context, meetingID string) error {
	token, err := c.GenerateToken([]string{PermissionRecord}, 1)
	if err != nil {
		return err
	}
	return c.post(ctx, "/hls/stop", token, map[string]interface{}{"roomId": meetingID}, nil)
}

func (c *Client) EndMeeting(ctx context.Context, meetingID string) error {
	token, err := c.GenerateToken(nil, 1)
	if err != nil {
		return err
	}
	return c.post(ctx, fmt.Sprintf("/rooms/%s/end", meetingID), token, nil, nil)
}

func (c *Client) post(ctx context.Context, path, token string, body, out interface{}) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return apperrors.Internal("encoding provider request", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, &payload)
	if err != nil {
		return apperrors.Internal("building provider request", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return apperrors.Timeout("provider call timed out", err)
		}
		return apperrors.ExternalService("provider call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider returned non-success status",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apperrors.ExternalService(
			fmt.Sprintf("provider returned status %d for %s", resp.StatusCode, path), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.ExternalService("decoding provider response", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
