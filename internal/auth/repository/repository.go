// Package repository loads agent credentials for authentication.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp_portal_backend/platform/apperr"
)

// Credentials are the stored login secrets for an agent.
type Credentials struct {
	AgentID      string
	DisplayName  string
	PasswordHash string
}

// Repository is the persistence boundary for authentication.
type Repository interface {
	Credentials(ctx context.Context, agentID string) (*Credentials, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// New creates an auth repository backed by pgx.
func New(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Credentials(ctx context.Context, agentID string) (*Credentials, error) {
	var c Credentials
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, password_hash FROM agents WHERE id = $1`,
		agentID).Scan(&c.AgentID, &c.DisplayName, &c.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &c, nil
}
