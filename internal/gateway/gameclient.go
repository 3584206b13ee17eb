package gateway

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

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

// GameClient talks JSON over HTTP to the bridge running next to each
// player's game client.
type GameClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGameClient(baseURL string, timeout time.Duration) *GameClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GameClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type connectedResponse struct {
	Connected bool `json:"connected"`
}

type startGameRequest struct {
	MatchID string   `json:"match_id"`
	Team1   []string `json:"team1"`
	Team2   []string `json:"team2"`
}

func (c *GameClient) IsConnected(ctx context.Context, p types.PlayerID) (bool, error) {
	var resp connectedResponse
	found, err := c.get(ctx, c.playerURL(p, "connected"), &resp)
	if err != nil {
		return false, err
	}
	return found && resp.Connected, nil
}

func (c *GameClient) RequestCurrentGameRecord(ctx context.Context, p types.PlayerID) (types.GameRecord, bool, error) {
	var rec types.GameRecord
	found, err := c.get(ctx, c.playerURL(p, "current-game"), &rec)
	if err != nil || !found {
		return types.GameRecord{}, false, err
	}
	return rec, rec.ID != "", nil
}

// RequestMatchHistory returns nil when the bridge has no history for p.
func (c *GameClient) RequestMatchHistory(ctx context.Context, p types.PlayerID) ([]types.GameRecord, error) {
	var recs []types.GameRecord
	if _, err := c.get(ctx, c.playerURL(p, "history"), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *GameClient) StartGame(ctx context.Context, m types.Match) error {
	body, err := json.Marshal(startGameRequest{
		MatchID: m.ID,
		Team1:   playerStrings(m.Team1),
		Team2:   playerStrings(m.Team2),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/games", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGameClientUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d, body: %s", ErrGameClientUnavailable, resp.StatusCode, string(msg))
	}
	return nil
}

func (c *GameClient) playerURL(p types.PlayerID, leaf string) string {
	return fmt.Sprintf("%s/players/%s/%s", c.baseURL, url.PathEscape(p.String()), leaf)
}

// get decodes a 200 response into result. A 404 reports found=false.
func (c *GameClient) get(ctx context.Context, endpoint string, result any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGameClientUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: status %d, body: %s", ErrGameClientUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}

func playerStrings(ps []types.PlayerID) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}
