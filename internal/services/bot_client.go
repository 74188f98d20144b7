package services

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

	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const internalSecretHeader = "X-Internal-Secret"

// BotClient talks to the bot runtime's internal API. It is the platform
// collaborator: community snapshots, posting, direct messages and the
// moderation effects themselves.
type BotClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewBotClient(baseURL, secret string, log *zap.Logger) *BotClient {
	return &BotClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// BotError is a non-2xx answer from the bot runtime.
type BotError struct {
	Status int
	Body   string
}

func (e *BotError) Error() string {
	return fmt.Sprintf("bot service returned %d: %s", e.Status, e.Body)
}

func (c *BotClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set(internalSecretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bot service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.NotFoundError{Entity: "bot resource", ID: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &BotError{Status: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bot response: %w", err)
	}
	return nil
}

// SnapshotMember is a member as reported by the runtime.
type SnapshotMember struct {
	ID           string   `json:"id"`
	RoleIDs      []string `json:"role_ids"`
	Capabilities []string `json:"capabilities"`
	Present      bool     `json:"present"`
}

// MemberSnapshot is the per-invocation view of a community.
type MemberSnapshot struct {
	CommunityID               string           `json:"community_id"`
	OwnerID                   string           `json:"owner_id"`
	System                    SnapshotMember   `json:"system"`
	SystemChannelCapabilities []string         `json:"system_channel_capabilities"`
	Members                   []SnapshotMember `json:"members"`
}

func (c *BotClient) Roles(ctx context.Context, communityID string) ([]models.Role, error) {
	var roles []models.Role
	err := c.do(ctx, http.MethodGet, "/internal/communities/"+url.PathEscape(communityID)+"/roles", nil, &roles)
	return roles, err
}

// Members fetches the given members plus the system member, owner and the
// system's capabilities in channelID.
func (c *BotClient) Members(ctx context.Context, communityID, channelID string, memberIDs []string) (*MemberSnapshot, error) {
	q := url.Values{}
	if channelID != "" {
		q.Set("channel_id", channelID)
	}
	if len(memberIDs) > 0 {
		q.Set("ids", strings.Join(memberIDs, ","))
	}
	path := "/internal/communities/" + url.PathEscape(communityID) + "/members?" + q.Encode()
	var snap MemberSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CanPost reports whether the system can post embeds to channelID.
func (c *BotClient) CanPost(ctx context.Context, communityID, channelID string) (bool, error) {
	var res struct {
		Capabilities []string `json:"capabilities"`
	}
	path := fmt.Sprintf("/internal/channels/%s/permissions?community_id=%s", url.PathEscape(channelID), url.QueryEscape(communityID))
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return false, err
	}
	caps, err := models.ParseCapabilities(res.Capabilities)
	if err != nil {
		return false, err
	}
	return caps.Has(models.CapViewChannel) && caps.Has(models.CapSendMessages) && caps.Has(models.CapEmbedLinks), nil
}

func (c *BotClient) PostEmbed(ctx context.Context, channelID string, embed models.Embed) error {
	return c.do(ctx, http.MethodPost, "/internal/channels/"+url.PathEscape(channelID)+"/messages",
		map[string]any{"embed": embed}, nil)
}

func (c *BotClient) SendDirectMessage(ctx context.Context, msg models.DirectMessage) error {
	return c.do(ctx, http.MethodPost, "/internal/notify", msg, nil)
}

func (c *BotClient) Ban(ctx context.Context, communityID, userID, reason string, deleteDays int) error {
	return c.do(ctx, http.MethodPost, "/internal/communities/"+url.PathEscape(communityID)+"/bans", map[string]any{
		"user_id":     userID,
		"reason":      reason,
		"delete_days": deleteDays,
	}, nil)
}

func (c *BotClient) Kick(ctx context.Context, communityID, userID, reason string) error {
	return c.do(ctx, http.MethodPost, "/internal/communities/"+url.PathEscape(communityID)+"/kicks", map[string]any{
		"user_id": userID,
		"reason":  reason,
	}, nil)
}

func (c *BotClient) Timeout(ctx context.Context, communityID, userID string, d time.Duration, reason string) error {
	return c.do(ctx, http.MethodPost, "/internal/communities/"+url.PathEscape(communityID)+"/timeouts", map[string]any{
		"user_id":     userID,
		"duration_ms": d.Milliseconds(),
		"reason":      reason,
	}, nil)
}

// DeleteMessages bulk-deletes up to amount recent messages, optionally only
// those by authorID. Messages older than 14 days cannot be bulk-deleted and
// come back as skipped.
func (c *BotClient) DeleteMessages(ctx context.Context, channelID string, amount int, authorID string) (int, int, error) {
	var res struct {
		Deleted int `json:"deleted"`
		Skipped int `json:"skipped"`
	}
	err := c.do(ctx, http.MethodPost, "/internal/channels/"+url.PathEscape(channelID)+"/purge", map[string]any{
		"amount":    amount,
		"author_id": authorID,
	}, &res)
	return res.Deleted, res.Skipped, err
}
