// internal/store/schema.go
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Constraints carry the core invariants:
// a username belongs to exactly one identity within a provider (the
// primary key is the concurrency guard against racing link attempts),
// an identity holds at most one profile per provider, and deleting an
// identity removes everything hanging off it.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	identity   TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS provider_profiles (
	provider        TEXT NOT NULL,
	username        TEXT NOT NULL,
	identity        TEXT NOT NULL REFERENCES identities(identity) ON DELETE CASCADE,
	current_rating  INTEGER,
	previous_rating INTEGER,
	belt            TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (provider, username)
);

CREATE UNIQUE INDEX IF NOT EXISTS provider_profiles_identity_idx
	ON provider_profiles (provider, identity);

CREATE TABLE IF NOT EXISTS mod_awards (
	identity   TEXT PRIMARY KEY REFERENCES identities(identity) ON DELETE CASCADE,
	belt       TEXT NOT NULL,
	awarded_by TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema. Statements are idempotent, so running it
// on every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return &Error{Op: "migrate", Err: err}
	}
	return nil
}
