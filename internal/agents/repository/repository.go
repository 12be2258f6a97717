// Package repository persists agent profiles.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp_portal_backend/platform/apperr"
)

// Profile is an agent's presentation settings.
type Profile struct {
	ID          string
	DisplayName string
	UsePrefix   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository is the persistence boundary for agent profiles.
type Repository interface {
	Get(ctx context.Context, id string) (*Profile, error)
	// Upsert creates or updates the profile's presentation settings.
	// Password hashes are managed separately by the auth module.
	Upsert(ctx context.Context, id, displayName string, usePrefix bool) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// New creates an agents repository backed by pgx.
func New(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, use_prefix, created_at, updated_at FROM agents WHERE id = $1`,
		id).Scan(&p.ID, &p.DisplayName, &p.UsePrefix, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &p, nil
}

func (r *postgresRepository) Upsert(ctx context.Context, id, displayName string, usePrefix bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agents (id, display_name, password_hash, use_prefix)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    use_prefix = EXCLUDED.use_prefix,
		    updated_at = now()`,
		id, displayName, usePrefix)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}
