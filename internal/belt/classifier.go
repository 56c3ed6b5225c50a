// internal/belt/classifier.go
package belt

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Band pairs a rating threshold with the rank earned strictly above it.
type Band struct {
	Threshold int  `json:"threshold"`
	Rank      Rank `json:"-"`

	// RankName carries the rank through JSON table files.
	RankName string `json:"rank"`
}

// Classifier maps a provider's numeric rating to a Rank using a
// per-provider band table. Thresholds are calibration data and differ
// between providers; tables can be replaced at startup via a JSON file
// without a code change.
type Classifier struct {
	tables map[string][]Band
}

// NewClassifier builds a classifier from per-provider band tables.
// Each table is sorted highest threshold first; band order in the
// input does not matter.
func NewClassifier(tables map[string][]Band) *Classifier {
	c := &Classifier{tables: make(map[string][]Band, len(tables))}
	for prov, bands := range tables {
		sorted := make([]Band, len(bands))
		copy(sorted, bands)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Threshold > sorted[j].Threshold
		})
		c.tables[prov] = sorted
	}
	return c
}

// DefaultTables returns the compiled-in calibration. Lichess ratings
// run higher than chess.com ratings, so its cut points sit 100 above.
func DefaultTables() map[string][]Band {
	return map[string][]Band{
		"chesscom": {
			{Threshold: 1200, Rank: Yellow},
			{Threshold: 1400, Rank: Orange},
			{Threshold: 1600, Rank: Green},
			{Threshold: 1800, Rank: Blue},
			{Threshold: 2000, Rank: Purple},
			{Threshold: 2200, Rank: Brown},
			{Threshold: 2400, Rank: Red},
			{Threshold: 2600, Rank: Black},
		},
		"lichess": {
			{Threshold: 1300, Rank: Yellow},
			{Threshold: 1500, Rank: Orange},
			{Threshold: 1700, Rank: Green},
			{Threshold: 1900, Rank: Blue},
			{Threshold: 2100, Rank: Purple},
			{Threshold: 2300, Rank: Brown},
			{Threshold: 2500, Rank: Red},
			{Threshold: 2700, Rank: Black},
		},
	}
}

// LoadTables reads band tables from a JSON file of the shape
//
//	{"chesscom": [{"threshold": 1200, "rank": "yellow"}, ...], ...}
func LoadTables(path string) (map[string][]Band, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read belt table file: %w", err)
	}
	var raw map[string][]Band
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse belt table file: %w", err)
	}
	for prov, bands := range raw {
		for i := range bands {
			r, err := ParseRank(bands[i].RankName)
			if err != nil {
				return nil, fmt.Errorf("belt table for %q: %w", prov, err)
			}
			bands[i].Rank = r
		}
	}
	return raw, nil
}

// Classify maps a rating to a rank: the highest band whose threshold
// is strictly below the rating wins. A missing rating, an unknown
// provider, or a rating under every band all map to the lowest rank.
// Pure and total; there is no error case.
func (c *Classifier) Classify(provider string, rating *int) Rank {
	if rating == nil {
		return Lowest
	}
	for _, band := range c.tables[provider] {
		if *rating > band.Threshold {
			return band.Rank
		}
	}
	return Lowest
}
