package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "studychat/internal/pkg/chat/domain"
)

// PgChatRepository persists the message log and conversation records in
// Postgres. Unread counters are dedicated rows updated with an atomic
// ON CONFLICT increment, never a read-modify-write round trip.
type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

func (r *PgChatRepository) SaveMessage(ctx context.Context, m chat.Message) (*chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	low, high := chat.CanonicalPair(m.SenderID, m.ReceiverID)

	// The no-op update makes RETURNING yield the id on conflict as well.
	var conversationID string
	err = tx.QueryRow(ctx, `
		INSERT INTO chat.conversation (participant_low, participant_high)
		VALUES ($1::uuid, $2::uuid)
		ON CONFLICT (participant_low, participant_high)
		DO UPDATE SET participant_low = EXCLUDED.participant_low
		RETURNING id::text
	`, low, high).Scan(&conversationID)
	if err != nil {
		return nil, err
	}

	saved := m
	saved.ConversationID = conversationID
	err = tx.QueryRow(ctx, `
		INSERT INTO chat.message (conversation_id, sender_id, receiver_id, content, kind)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5)
		RETURNING id::text, created_at, updated_at
	`, conversationID, m.SenderID, m.ReceiverID, m.Content, string(m.Kind)).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE chat.conversation
		SET last_message_id = $2::uuid, last_message_at = $3
		WHERE id = $1::uuid
	`, conversationID, saved.ID, saved.CreatedAt); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat.conversation_unread (conversation_id, user_id, count)
		VALUES ($1::uuid, $2::uuid, 1)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET count = chat.conversation_unread.count + 1
	`, conversationID, m.ReceiverID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PgChatRepository) GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	var conv chat.Conversation
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, participant_low::text, participant_high::text,
		       last_message_id::text, last_message_at, created_at
		FROM chat.conversation
		WHERE id = $1::uuid
	`, conversationID).Scan(&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh,
		&conv.LastMessageID, &conv.LastMessageAt, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadUnread(ctx, []*chat.Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *PgChatRepository) GetConversationByPair(ctx context.Context, a, b string) (*chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	low, high := chat.CanonicalPair(a, b)
	var conv chat.Conversation
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, participant_low::text, participant_high::text,
		       last_message_id::text, last_message_at, created_at
		FROM chat.conversation
		WHERE participant_low = $1::uuid AND participant_high = $2::uuid
	`, low, high).Scan(&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh,
		&conv.LastMessageID, &conv.LastMessageAt, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadUnread(ctx, []*chat.Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *PgChatRepository) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, participant_low::text, participant_high::text,
		       last_message_id::text, last_message_at, created_at
		FROM chat.conversation
		WHERE participant_low = $1::uuid OR participant_high = $1::uuid
		ORDER BY last_message_at DESC NULLS LAST
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []chat.Conversation
	for rows.Next() {
		var conv chat.Conversation
		if err := rows.Scan(&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh,
			&conv.LastMessageID, &conv.LastMessageAt, &conv.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	refs := make([]*chat.Conversation, len(convs))
	for i := range convs {
		refs[i] = &convs[i]
	}
	if err := r.loadUnread(ctx, refs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *PgChatRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int, asc bool) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order := "ORDER BY created_at DESC, seq DESC"
	if asc {
		order = "ORDER BY created_at ASC, seq ASC"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, conversation_id::text, sender_id::text, receiver_id::text,
		       content, kind, is_read, created_at, updated_at
		FROM chat.message
		WHERE conversation_id = $1::uuid
		`+order+`
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg  chat.Message
			kind string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &kind, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		msg.Kind = chat.MessageKind(kind)
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgChatRepository: nil pool")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE chat.message
		SET is_read = true, updated_at = now()
		WHERE conversation_id = $1::uuid AND receiver_id = $2::uuid AND is_read = false
	`, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat.conversation_unread (conversation_id, user_id, count)
		VALUES ($1::uuid, $2::uuid, 0)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET count = 0
	`, conversationID, readerID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *PgChatRepository) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		DELETE FROM chat.message
		WHERE id = $1::uuid AND sender_id = $2::uuid
	`, messageID, requesterID)
	if err != nil {
		return err
	}
	// Ownership mismatch and absence look identical to the caller.
	if ct.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (r *PgChatRepository) loadUnread(ctx context.Context, convs []*chat.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(convs))
	byID := make(map[string]*chat.Conversation, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
		byID[conv.ID] = conv
		conv.Unread = make(map[string]int, 2)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id::text, user_id::text, count
		FROM chat.conversation_unread
		WHERE conversation_id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			convID string
			userID string
			count  int
		)
		if err := rows.Scan(&convID, &userID, &count); err != nil {
			return err
		}
		if conv := byID[convID]; conv != nil {
			conv.Unread[userID] = count
		}
	}
	return rows.Err()
}
