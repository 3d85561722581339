package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studychat/internal/pkg/identity/port"
)

// PgDirectory reads display profiles from the users table the auth service
// maintains. This package never writes to it.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

var _ port.Directory = (*PgDirectory)(nil)

func (d *PgDirectory) FindByID(ctx context.Context, id string) (*port.Identity, error) {
	if d == nil || d.pool == nil {
		return nil, errors.New("PgDirectory: nil pool")
	}
	var ident port.Identity
	var avatar *string
	err := d.pool.QueryRow(ctx,
		"SELECT id::text, name, avatar FROM users WHERE id = $1::uuid",
		id,
	).Scan(&ident.ID, &ident.Name, &avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown user %s", port.ErrInvalidCredential, id)
	}
	if err != nil {
		return nil, err
	}
	if avatar != nil {
		ident.Avatar = *avatar
	}
	return &ident, nil
}

func (d *PgDirectory) FindByIDs(ctx context.Context, ids []string) (map[string]port.Identity, error) {
	if d == nil || d.pool == nil {
		return nil, errors.New("PgDirectory: nil pool")
	}
	out := make(map[string]port.Identity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.pool.Query(ctx,
		"SELECT id::text, name, avatar FROM users WHERE id = ANY($1::uuid[])",
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ident port.Identity
		var avatar *string
		if err := rows.Scan(&ident.ID, &ident.Name, &avatar); err != nil {
			return nil, err
		}
		if avatar != nil {
			ident.Avatar = *avatar
		}
		out[ident.ID] = ident
	}
	return out, rows.Err()
}

// MemDirectory keeps profiles in memory for tests and DB-less mode.
type MemDirectory struct {
	mu       sync.RWMutex
	profiles map[string]port.Identity
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{profiles: make(map[string]port.Identity)}
}

var _ port.Directory = (*MemDirectory)(nil)

// Put registers or replaces a profile.
func (d *MemDirectory) Put(ident port.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[ident.ID] = ident
}

func (d *MemDirectory) FindByID(_ context.Context, id string) (*port.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown user %s", port.ErrInvalidCredential, id)
	}
	return &ident, nil
}

func (d *MemDirectory) FindByIDs(_ context.Context, ids []string) (map[string]port.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]port.Identity, len(ids))
	for _, id := range ids {
		if ident, ok := d.profiles[id]; ok {
			out[id] = ident
		}
	}
	return out, nil
}
