// internal/provider/lichess.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const lichessBaseURL = "https://lichess.org/api"

// lichessCanonical is the category whose rating feeds belt
// classification.
const lichessCanonical = "classical"

// Lichess talks to the public lichess.org API. One round trip per
// fetch: /user/{u} carries bio and all perf pools.
type Lichess struct {
	// BaseURL can be pointed at a test server; empty means the real API.
	BaseURL string

	Client *http.Client
}

// NewLichess returns a Lichess provider using the given HTTP client,
// or http.DefaultClient when client is nil.
func NewLichess(client *http.Client) *Lichess {
	if client == nil {
		client = http.DefaultClient
	}
	return &Lichess{Client: client}
}

func (l *Lichess) Name() string { return LichessName }

type lichessPerf struct {
	Rating int  `json:"rating"`
	Games  int  `json:"games"`
	Prov   bool `json:"prov"`
}

type lichessUser struct {
	Profile struct {
		Bio *string `json:"bio"`
	} `json:"profile"`
	Perfs map[string]lichessPerf `json:"perfs"`
}

func (l *Lichess) baseURL() string {
	if l.BaseURL != "" {
		return l.BaseURL
	}
	return lichessBaseURL
}

// FetchProfile retrieves the public user record.
func (l *Lichess) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/user/%s", l.baseURL(), username), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: lichess returned %d", ErrUnavailable, resp.StatusCode)
	}

	var user lichessUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	profile := &Profile{
		Categories: make(map[string]Category, len(user.Perfs)),
		Bio:        user.Profile.Bio,
	}
	for name, perf := range user.Perfs {
		profile.Categories[name] = Category{Rating: perf.Rating, Provisional: perf.Prov}
	}
	return profile, nil
}

// Resolve picks the classical rating. Provisional ratings are
// suppressed rather than trusted: a provisional classical pool makes
// the canonical rating absent, which still links the account at the
// lowest belt. Only a profile with no settled rating in any pool is
// rejected outright.
func (l *Lichess) Resolve(p *Profile) (*int, error) {
	anySettled := false
	for _, cat := range p.Categories {
		if !cat.Provisional {
			anySettled = true
			break
		}
	}
	if !anySettled {
		return nil, ErrInsufficientData
	}

	canonical, ok := p.Categories[lichessCanonical]
	if !ok || canonical.Provisional {
		return nil, nil
	}
	rating := canonical.Rating
	return &rating, nil
}
