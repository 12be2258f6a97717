package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/platform/apperr"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a conversation repository backed by pgx.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const conversationColumns = `
	id, status, assignee, assignee_name, last_inbound_at,
	last_message_text, last_message_by,
	last_reopen_template_at, last_reopen_template_sid,
	last_reopen_template_by, last_reopen_template_by_name,
	reopened_at, reopened_by, handoff_active, tags,
	session_parameters, created_at, updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var (
		c          domain.Conversation
		assignee   *string
		assigneeNm *string
		lastText   *string
		lastBy     *string
		reopenSID  *string
		reopenBy   *string
		reopenByNm *string
		reopenedBy *string
		rawParams  []byte
	)
	err := row.Scan(
		&c.ID, &c.Status, &assignee, &assigneeNm, &c.LastInboundAt,
		&lastText, &lastBy,
		&c.LastReopenTemplateAt, &reopenSID, &reopenBy, &reopenByNm,
		&c.ReopenedAt, &reopenedBy, &c.HandoffActive, &c.Tags,
		&rawParams, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Assignee = deref(assignee)
	c.AssigneeName = deref(assigneeNm)
	c.LastMessageText = deref(lastText)
	c.LastMessageBy = deref(lastBy)
	c.LastReopenTemplateSID = deref(reopenSID)
	c.LastReopenTemplateBy = deref(reopenBy)
	c.LastReopenTemplateByName = deref(reopenByNm)
	c.ReopenedBy = deref(reopenedBy)
	c.SessionParameters = domain.ParseSessionParameters(rawParams)
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (r *postgresRepository) List(ctx context.Context, params ListParams) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	args := []any{}
	idx := 1

	if len(params.Statuses) > 0 {
		query += fmt.Sprintf(` AND status = ANY($%d)`, idx)
		args = append(args, params.Statuses)
		idx++
	}
	if params.Assignee != "" {
		query += fmt.Sprintf(` AND assignee = $%d`, idx)
		args = append(args, params.Assignee)
		idx++
	}
	if params.CursorAt != nil {
		query += fmt.Sprintf(` AND (updated_at, id) < ($%d, $%d)`, idx, idx+1)
		args = append(args, *params.CursorAt, params.CursorID)
		idx += 2
	}
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (r *postgresRepository) ListByRawStatus(ctx context.Context, rawStatus string) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE status = $1 ORDER BY updated_at ASC`
	rows, err := r.pool.Query(ctx, query, rawStatus)
	if err != nil {
		return nil, fmt.Errorf("list conversations by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// transition runs an atomic conditional update and translates zero affected
// rows into not-found or conflict, depending on whether the row exists.
func (r *postgresRepository) transition(ctx context.Context, id, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("conversation transition: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("conversation transition check: %w", err)
	}
	if !exists {
		return apperr.NotFound("conversation not found")
	}
	return apperr.Conflict("conversation changed concurrently")
}

func (r *postgresRepository) ClaimPending(ctx context.Context, id, agentID, agentName string) error {
	query := `
		UPDATE conversations
		SET status = 'claimed', assignee = $2, assignee_name = $3,
		    handoff_active = false,
		    session_parameters = session_parameters - 'handoff_requested',
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending_handoff', 'pending')`
	return r.transition(ctx, id, query, id, agentID, agentName)
}

func (r *postgresRepository) HandoffFromBot(ctx context.Context, id, agentID, agentName string) error {
	query := `
		UPDATE conversations
		SET status = 'claimed', assignee = $2, assignee_name = $3,
		    handoff_active = false,
		    session_parameters = session_parameters - 'handoff_requested',
		    updated_at = now()
		WHERE id = $1 AND status = 'bot'`
	return r.transition(ctx, id, query, id, agentID, agentName)
}

func (r *postgresRepository) Takeover(ctx context.Context, id, agentID, agentName string) error {
	query := `
		UPDATE conversations
		SET assignee = $2, assignee_name = $3,
		    handoff_active = false, updated_at = now()
		WHERE id = $1 AND status IN ('claimed', 'active')`
	return r.transition(ctx, id, query, id, agentID, agentName)
}

func (r *postgresRepository) Resolve(ctx context.Context, id string) error {
	query := `
		UPDATE conversations
		SET status = 'resolved', assignee = NULL, assignee_name = NULL,
		    handoff_active = false,
		    session_parameters = session_parameters - 'handoff_requested',
		    updated_at = now()
		WHERE id = $1 AND status IN ('claimed', 'active', 'bot')`
	return r.transition(ctx, id, query, id)
}

func (r *postgresRepository) MarkSent(ctx context.Context, id, agentID, agentName, lastText, lastBy string) error {
	query := `
		UPDATE conversations
		SET status = 'active', assignee = $2, assignee_name = $3,
		    last_message_text = $4, last_message_by = $5, updated_at = now()
		WHERE id = $1 AND status IN ('claimed', 'active')
		  AND (assignee IS NULL OR assignee = $2)`
	return r.transition(ctx, id, query, id, agentID, agentName, lastText, lastBy)
}

func (r *postgresRepository) ApplyReopen(ctx context.Context, id string, upd ReopenUpdate) error {
	query := `
		UPDATE conversations
		SET status = $2,
		    assignee = NULLIF($3, ''), assignee_name = NULLIF($4, ''),
		    claimed_by = NULL,
		    handoff_active = false,
		    session_parameters = session_parameters - 'handoff_requested',
		    reopened_at = now(), reopened_by = $5,
		    last_reopen_template_at = now(),
		    last_reopen_template_sid = $6,
		    last_reopen_template_by = $7,
		    last_reopen_template_by_name = $8,
		    last_message_text = $9, last_message_by = $10,
		    updated_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id,
		string(upd.Status), upd.Assignee, upd.AssigneeName,
		upd.ReopenedBy, upd.TemplateSID, upd.TemplateBy, upd.TemplateByName,
		upd.LastMessageText, upd.LastMessageBy)
	if err != nil {
		return fmt.Errorf("apply reopen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation not found")
	}
	return nil
}

func (r *postgresRepository) SetLastInboundAt(ctx context.Context, id string, ts time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_inbound_at = $2 WHERE id = $1 AND (last_inbound_at IS NULL OR last_inbound_at < $2)`,
		id, ts)
	if err != nil {
		return fmt.Errorf("set last inbound: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetUserName(ctx context.Context, id, userName, updatedBy string) error {
	value, err := json.Marshal(userName)
	if err != nil {
		return fmt.Errorf("marshal user name: %w", err)
	}
	stampBy, err := json.Marshal(updatedBy)
	if err != nil {
		return fmt.Errorf("marshal user name author: %w", err)
	}
	query := `
		UPDATE conversations
		SET session_parameters = jsonb_set(
		        jsonb_set(
		            jsonb_set(session_parameters, '{user_name}', $2::jsonb),
		            '{user_name_updated_by}', $3::jsonb),
		        '{user_name_updated_at}', to_jsonb(now())),
		    updated_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, value, stampBy)
	if err != nil {
		return fmt.Errorf("set user name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation not found")
	}
	return nil
}
