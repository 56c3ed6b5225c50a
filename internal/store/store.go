// internal/store/store.go

// Package store persists identities, linked provider profiles, and
// moderator-awarded belts in Postgres. All methods run against an
// injected pooled handle; writes are transactional upserts so racing
// commands cannot duplicate a link.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giziti/beltbot/internal/belt"
)

// Error wraps any failed store operation. A failed write is never
// reported as success; callers surface these as "try again later."
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ProviderProfile is one linked external account.
type ProviderProfile struct {
	Provider       string
	Username       string
	Identity       string
	CurrentRating  *int
	PreviousRating *int
	Belt           belt.Rank
}

// Aggregate is everything known about one identity: the optional
// moderator award plus every linked profile. The best rank is computed
// in the orchestration layer with the rank enumeration's own order,
// never by the database's text collation.
type Aggregate struct {
	Identity string
	ModRank  *belt.Rank
	Profiles []ProviderProfile
}

// LadderEntry is one leaderboard row.
type LadderEntry struct {
	Username string
	Rating   int
}

// Store executes queries against a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect builds a pgx pool from a database URL and verifies it with a
// short ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// EnsureIdentity creates the identity row if it does not exist yet.
func (s *Store) EnsureIdentity(ctx context.Context, identity string) error {
	q := `INSERT INTO identities (identity) VALUES ($1) ON CONFLICT (identity) DO NOTHING`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, identity)
		return execErr
	})
	if err != nil {
		return &Error{Op: "ensure identity", Err: err}
	}
	return nil
}

// GetProviderProfile looks up the identity's link for one provider.
// The second return value distinguishes "not linked" from an error.
func (s *Store) GetProviderProfile(ctx context.Context, providerName, identity string) (*ProviderProfile, bool, error) {
	q := `
	SELECT provider, username, identity, current_rating, previous_rating, belt
	FROM provider_profiles
	WHERE provider=$1 AND identity=$2
	`
	var p ProviderProfile
	var beltName string
	err := s.pool.QueryRow(ctx, q, providerName, identity).Scan(
		&p.Provider, &p.Username, &p.Identity,
		&p.CurrentRating, &p.PreviousRating, &beltName,
	)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "get provider profile", Err: err}
	}
	rank, err := belt.ParseRank(beltName)
	if err != nil {
		return nil, false, &Error{Op: "get provider profile", Err: err}
	}
	p.Belt = rank
	return &p, true, nil
}

// UpsertProviderProfile inserts the link or refreshes its ratings in
// place. The row is keyed on (provider, username); a username already
// claimed by a different identity is refused rather than stolen.
func (s *Store) UpsertProviderProfile(ctx context.Context, p ProviderProfile) error {
	q := `
	INSERT INTO provider_profiles (provider, username, identity, current_rating, previous_rating, belt)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, username)
	DO UPDATE SET current_rating=EXCLUDED.current_rating,
	              previous_rating=EXCLUDED.previous_rating,
	              belt=EXCLUDED.belt,
	              updated_at=NOW()
	WHERE provider_profiles.identity = EXCLUDED.identity
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, execErr := tx.Exec(ctx, q,
			p.Provider, p.Username, p.Identity,
			p.CurrentRating, p.PreviousRating, p.Belt.String(),
		)
		if execErr != nil {
			return execErr
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("username %s is already linked to another identity on %s", p.Username, p.Provider)
		}
		return nil
	})
	if err != nil {
		return &Error{Op: "upsert provider profile", Err: err}
	}
	return nil
}

// DeleteProviderProfile removes the identity's link for one provider
// and reports how many rows went away, so callers can tell "removed"
// from "was never linked."
func (s *Store) DeleteProviderProfile(ctx context.Context, providerName, identity string) (int64, error) {
	q := `DELETE FROM provider_profiles WHERE provider=$1 AND identity=$2`
	var deleted int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, execErr := tx.Exec(ctx, q, providerName, identity)
		if execErr != nil {
			return execErr
		}
		deleted = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, &Error{Op: "delete provider profile", Err: err}
	}
	return deleted, nil
}

// DeleteIdentity removes the identity row; profiles and awards go with
// it via cascade.
func (s *Store) DeleteIdentity(ctx context.Context, identity string) (int64, error) {
	q := `DELETE FROM identities WHERE identity=$1`
	var deleted int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, execErr := tx.Exec(ctx, q, identity)
		if execErr != nil {
			return execErr
		}
		deleted = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, &Error{Op: "delete identity", Err: err}
	}
	return deleted, nil
}

// AwardModRank records or replaces the moderator-awarded belt for an
// identity. Authorization happens before this call.
func (s *Store) AwardModRank(ctx context.Context, identity string, rank belt.Rank, awardedBy string) error {
	q := `
	INSERT INTO mod_awards (identity, belt, awarded_by)
	VALUES ($1, $2, $3)
	ON CONFLICT (identity)
	DO UPDATE SET belt=EXCLUDED.belt, awarded_by=EXCLUDED.awarded_by, updated_at=NOW()
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, identity, rank.String(), awardedBy)
		return execErr
	})
	if err != nil {
		return &Error{Op: "award mod rank", Err: err}
	}
	return nil
}

// GetAggregate loads the identity row, its mod award, and all linked
// profiles. The boolean is false when the identity has never been
// ensured.
func (s *Store) GetAggregate(ctx context.Context, identity string) (*Aggregate, bool, error) {
	var exists string
	err := s.pool.QueryRow(ctx, `SELECT identity FROM identities WHERE identity=$1`, identity).Scan(&exists)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "get aggregate", Err: err}
	}

	agg := &Aggregate{Identity: identity}

	var beltName string
	err = s.pool.QueryRow(ctx, `SELECT belt FROM mod_awards WHERE identity=$1`, identity).Scan(&beltName)
	switch {
	case err == pgx.ErrNoRows:
		// no award
	case err != nil:
		return nil, false, &Error{Op: "get aggregate", Err: err}
	default:
		rank, parseErr := belt.ParseRank(beltName)
		if parseErr != nil {
			return nil, false, &Error{Op: "get aggregate", Err: parseErr}
		}
		agg.ModRank = &rank
	}

	rows, err := s.pool.Query(ctx, `
		SELECT provider, username, identity, current_rating, previous_rating, belt
		FROM provider_profiles
		WHERE identity=$1
		ORDER BY provider
	`, identity)
	if err != nil {
		return nil, false, &Error{Op: "get aggregate", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var p ProviderProfile
		var name string
		if err := rows.Scan(&p.Provider, &p.Username, &p.Identity, &p.CurrentRating, &p.PreviousRating, &name); err != nil {
			return nil, false, &Error{Op: "get aggregate", Err: err}
		}
		rank, parseErr := belt.ParseRank(name)
		if parseErr != nil {
			return nil, false, &Error{Op: "get aggregate", Err: parseErr}
		}
		p.Belt = rank
		agg.Profiles = append(agg.Profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, &Error{Op: "get aggregate", Err: err}
	}
	return agg, true, nil
}

// TopByProvider returns the provider's leaderboard: rated accounts
// only, best first.
func (s *Store) TopByProvider(ctx context.Context, providerName string, limit int) ([]LadderEntry, error) {
	q := `
	SELECT username, current_rating
	FROM provider_profiles
	WHERE provider=$1 AND current_rating IS NOT NULL
	ORDER BY current_rating DESC
	LIMIT $2
	`
	rows, err := s.pool.Query(ctx, q, providerName, limit)
	if err != nil {
		return nil, &Error{Op: "top by provider", Err: err}
	}
	defer rows.Close()

	var entries []LadderEntry
	for rows.Next() {
		var e LadderEntry
		if err := rows.Scan(&e.Username, &e.Rating); err != nil {
			return nil, &Error{Op: "top by provider", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "top by provider", Err: err}
	}
	return entries, nil
}

// LadderWindow returns rated accounts whose ratings sit closest above
// and below the given rating, best first. Backs the "players near me"
// command.
func (s *Store) LadderWindow(ctx context.Context, providerName string, rating, span int) ([]LadderEntry, error) {
	q := `
	(SELECT username, current_rating
	 FROM provider_profiles
	 WHERE provider=$1 AND current_rating IS NOT NULL AND current_rating >= $2
	 ORDER BY current_rating ASC
	 LIMIT $3)
	UNION ALL
	(SELECT username, current_rating
	 FROM provider_profiles
	 WHERE provider=$1 AND current_rating IS NOT NULL AND current_rating < $2
	 ORDER BY current_rating DESC
	 LIMIT $3)
	`
	rows, err := s.pool.Query(ctx, q, providerName, rating, span)
	if err != nil {
		return nil, &Error{Op: "ladder window", Err: err}
	}
	defer rows.Close()

	var entries []LadderEntry
	for rows.Next() {
		var e LadderEntry
		if err := rows.Scan(&e.Username, &e.Rating); err != nil {
			return nil, &Error{Op: "ladder window", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "ladder window", Err: err}
	}
	sortLadderDesc(entries)
	return entries, nil
}

func sortLadderDesc(entries []LadderEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return entries[i].Username < entries[j].Username
	})
}
