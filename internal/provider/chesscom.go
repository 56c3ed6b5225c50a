// internal/provider/chesscom.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const chessComBaseURL = "https://api.chess.com/pub"

// liveCategories is the whitelist of chess.com pools that count as
// live play. Daily and variant pools are ignored on purpose.
var liveCategories = []string{"rapid", "blitz", "bullet"}

// chessComCanonical is the category whose rating feeds belt
// classification.
const chessComCanonical = "rapid"

// ChessCom talks to the public chess.com API. A profile fetch is two
// round trips: /player/{u} for the location field and
// /player/{u}/stats for the rating pools.
type ChessCom struct {
	// BaseURL can be pointed at a test server; empty means the real API.
	BaseURL string

	Client *http.Client
}

// NewChessCom returns a ChessCom provider using the given HTTP client,
// or http.DefaultClient when client is nil.
func NewChessCom(client *http.Client) *ChessCom {
	if client == nil {
		client = http.DefaultClient
	}
	return &ChessCom{Client: client}
}

func (c *ChessCom) Name() string { return ChessComName }

type chessComPlayer struct {
	Location *string `json:"location"`
}

type chessComStat struct {
	Last struct {
		Rating int `json:"rating"`
	} `json:"last"`
}

type chessComStats struct {
	Rapid  *chessComStat `json:"chess_rapid"`
	Blitz  *chessComStat `json:"chess_blitz"`
	Bullet *chessComStat `json:"chess_bullet"`
}

func (c *ChessCom) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return chessComBaseURL
}

// FetchProfile retrieves the player record and stats and merges them
// into a Profile.
func (c *ChessCom) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	var player chessComPlayer
	if err := c.getJSON(ctx, fmt.Sprintf("%s/player/%s", c.baseURL(), username), &player); err != nil {
		return nil, err
	}

	var stats chessComStats
	if err := c.getJSON(ctx, fmt.Sprintf("%s/player/%s/stats", c.baseURL(), username), &stats); err != nil {
		return nil, err
	}

	profile := &Profile{
		Categories: map[string]Category{},
		Location:   player.Location,
	}
	if stats.Rapid != nil {
		profile.Categories["rapid"] = Category{Rating: stats.Rapid.Last.Rating}
	}
	if stats.Blitz != nil {
		profile.Categories["blitz"] = Category{Rating: stats.Blitz.Last.Rating}
	}
	if stats.Bullet != nil {
		profile.Categories["bullet"] = Category{Rating: stats.Bullet.Last.Rating}
	}
	return profile, nil
}

// Resolve picks the rapid rating. Accounts with no live-category
// ratings at all, or with no rapid pool, have nothing to classify.
func (c *ChessCom) Resolve(p *Profile) (*int, error) {
	anyLive := false
	for _, cat := range liveCategories {
		if _, ok := p.Categories[cat]; ok {
			anyLive = true
			break
		}
	}
	if !anyLive {
		return nil, ErrInsufficientData
	}

	canonical, ok := p.Categories[chessComCanonical]
	if !ok {
		return nil, ErrInsufficientData
	}
	rating := canonical.Rating
	return &rating, nil
}

func (c *ChessCom) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: chess.com returned %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return nil
}
