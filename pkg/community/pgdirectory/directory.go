package pgdirectory

import (
	"context"
	"embed"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/pg"
)

// Migrations holds the schema, applied with pg.Migrate(ctx, pool,
// Migrations, MigrationsDir, cfg, log).
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

var ErrDirectory = errors.New("pgdirectory: query failed")

const (
	selectIdentity = `SELECT user_id, display_name, avatar, push_token, email, phone, toggles
FROM identities WHERE user_id = $1`

	upsertIdentity = `INSERT INTO identities (user_id, display_name, avatar, push_token, email, phone, toggles, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (user_id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    avatar       = EXCLUDED.avatar,
    push_token   = EXCLUDED.push_token,
    email        = EXCLUDED.email,
    phone        = EXCLUDED.phone,
    toggles      = EXCLUDED.toggles,
    updated_at   = now()`

	updateToggle = `UPDATE identities
SET toggles = toggles || jsonb_build_object($2::text, $3::boolean), updated_at = now()
WHERE user_id = $1`
)

// Directory resolves identities from the identities table.
type Directory struct {
	pool *pgxpool.Pool
}

var _ community.IdentityDirectory = (*Directory)(nil)

func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) Identity(ctx context.Context, userID string) (community.Identity, error) {
	var (
		id      community.Identity
		toggles map[community.Kind]bool
	)
	err := d.pool.QueryRow(ctx, selectIdentity, userID).Scan(
		&id.UserID,
		&id.DisplayName,
		&id.Avatar,
		&id.Addresses.PushToken,
		&id.Addresses.Email,
		&id.Addresses.Phone,
		&toggles,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return community.Identity{}, community.ErrIdentityNotFound
		}
		return community.Identity{}, errors.Join(ErrDirectory, err)
	}
	if len(toggles) > 0 {
		id.Toggles = toggles
	}
	return id, nil
}

// Put inserts or replaces id.
func (d *Directory) Put(ctx context.Context, id community.Identity) error {
	toggles := id.Toggles
	if toggles == nil {
		toggles = map[community.Kind]bool{}
	}
	_, err := d.pool.Exec(ctx, upsertIdentity,
		id.UserID,
		id.DisplayName,
		id.Avatar,
		id.Addresses.PushToken,
		id.Addresses.Email,
		id.Addresses.Phone,
		toggles,
	)
	if err != nil {
		return errors.Join(ErrDirectory, err)
	}
	return nil
}

// SetToggle flips one notification kind for userID.
func (d *Directory) SetToggle(ctx context.Context, userID string, kind community.Kind, enabled bool) error {
	tag, err := d.pool.Exec(ctx, updateToggle, userID, string(kind), enabled)
	if err != nil {
		return errors.Join(ErrDirectory, err)
	}
	if tag.RowsAffected() == 0 {
		return community.ErrIdentityNotFound
	}
	return nil
}
