package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/platform/apperr"
)

const messageColumns = `
	id, conversation_id, direction, author, display_name, text,
	media_url, media_type, ts, provider_sid, status,
	error_code, error_message, client_request_id,
	template_sid, template_name, is_template`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m         domain.Message
		display   *string
		mediaURL  *string
		mediaType *string
		provider  *string
		status    *string
		errCode   *string
		errMsg    *string
		clientReq *string
		tmplSID   *string
		tmplName  *string
	)
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Direction, &m.By, &display, &m.Text,
		&mediaURL, &mediaType, &m.TS, &provider, &status,
		&errCode, &errMsg, &clientReq, &tmplSID, &tmplName, &m.IsTemplate,
	)
	if err != nil {
		return nil, err
	}
	m.DisplayName = deref(display)
	m.MediaURL = deref(mediaURL)
	m.MediaType = deref(mediaType)
	m.ProviderSID = deref(provider)
	m.Status = deref(status)
	m.ErrorCode = deref(errCode)
	m.ErrorMessage = deref(errMsg)
	m.ClientRequestID = deref(clientReq)
	m.TemplateSID = deref(tmplSID)
	m.TemplateName = deref(tmplName)
	return &m, nil
}

func (r *postgresRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (
			id, conversation_id, direction, author, display_name, text,
			media_url, media_type, ts, provider_sid, status,
			error_code, error_message, client_request_id,
			template_sid, template_name, is_template
		) VALUES (
			$1, $2, $3, $4, NULLIF($5, ''), $6,
			NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), NULLIF($11, ''),
			NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''),
			NULLIF($15, ''), NULLIF($16, ''), $17
		)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, string(msg.Direction), msg.By, msg.DisplayName, msg.Text,
		msg.MediaURL, msg.MediaType, msg.TS, msg.ProviderSID, msg.Status,
		msg.ErrorCode, msg.ErrorMessage, msg.ClientRequestID,
		msg.TemplateSID, msg.TemplateName, msg.IsTemplate)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListMessages(ctx context.Context, conversationID string, params MessageListParams) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1`
	args := []any{conversationID}
	idx := 2

	if params.CursorAt != nil {
		query += fmt.Sprintf(` AND (ts, id) < ($%d, $%d)`, idx, idx+1)
		args = append(args, *params.CursorAt, params.CursorID)
		idx += 2
	}
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY ts DESC, id DESC LIMIT $%d`, idx)
	args = append(args, limit)

	return r.queryMessages(ctx, query, args...)
}

func (r *postgresRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY ts DESC, id DESC LIMIT $2`
	return r.queryMessages(ctx, query, conversationID, limit)
}

func (r *postgresRepository) FindInboundMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 AND direction = 'in' ORDER BY ts DESC, id DESC`
	return r.queryMessages(ctx, query, conversationID)
}

func (r *postgresRepository) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func (r *postgresRepository) GetMessage(ctx context.Context, conversationID, messageID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 AND id = $2`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, conversationID, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (r *postgresRepository) ApplyDelivery(ctx context.Context, conversationID, providerSID string, patch DeliveryPatch) (bool, error) {
	query := `
		UPDATE messages
		SET status = $3,
		    error_code = COALESCE(NULLIF($4, ''), error_code),
		    error_message = COALESCE(NULLIF($5, ''), error_message)
		WHERE conversation_id = $1 AND provider_sid = $2`
	tag, err := r.pool.Exec(ctx, query, conversationID, providerSID, patch.Status, patch.ErrorCode, patch.ErrorMessage)
	if err != nil {
		return false, fmt.Errorf("apply delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
