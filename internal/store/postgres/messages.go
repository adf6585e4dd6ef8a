package postgres

import (
	"context"
	"fmt"

	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/jackc/pgx/v5"
)

// messageColumns projects a messages row aliased m joined with its sender s
// and recipient r. Text messages store a NULL type.
const messageColumns = `
	m.id::text,
	s.id::text, s.username, COALESCE(s.avatar, ''),
	r.id::text, r.username, COALESCE(r.avatar, ''),
	m.message, m.image, m.reply::text,
	COALESCE(m.type, 'text'), m.created_at`

const insertMessage = `
WITH m AS (
	INSERT INTO messages (sender, recipient, reply, message, image, type)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, 'text'))
	RETURNING *
)
SELECT ` + messageColumns + `, m.read
FROM m
JOIN users s ON s.id = m.sender
JOIN users r ON r.id = m.recipient`

// markRead updates in a CTE; the outer select still sees the old snapshot, so
// the read flag is derived from the join with the updated ids.
const markRead = `
WITH u AS (
	UPDATE messages SET read = true
	WHERE id = ANY($2::uuid[]) AND recipient = $1 AND read = false
	RETURNING id
)
SELECT ` + messageColumns + `, m.read OR u.id IS NOT NULL
FROM messages m
JOIN users s ON s.id = m.sender
JOIN users r ON r.id = m.recipient
LEFT JOIN u ON u.id = m.id
WHERE m.id = ANY($2::uuid[]) AND m.recipient = $1
ORDER BY m.created_at`

const selectUser = `SELECT id::text, username, COALESCE(avatar, '') FROM users WHERE id = $1`

func (s *Store) CreateMessage(ctx context.Context, d domain.MessageDraft) (domain.Message, error) {
	row := s.db.QueryRow(ctx, insertMessage,
		string(d.Sender),
		string(d.Recipient),
		nullable(string(d.ReplyTo)),
		nullable(d.Body),
		nullable(d.Image),
		string(d.Kind),
	)
	msg, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", translate(err))
	}
	return msg, nil
}

func (s *Store) MarkRead(ctx context.Context, reader domain.UserID, ids []domain.MessageID) ([]domain.Message, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.db.Query(ctx, markRead, string(reader), keys)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", translate(err))
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark read rows: %w", translate(err))
	}
	return out, nil
}

func (s *Store) User(ctx context.Context, id domain.UserID) (domain.UserRef, error) {
	return s.user(ctx, s.db, id)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) user(ctx context.Context, q querier, id domain.UserID) (domain.UserRef, error) {
	var u domain.UserRef
	var uid string
	if err := q.QueryRow(ctx, selectUser, string(id)).Scan(&uid, &u.Username, &u.Avatar); err != nil {
		return domain.UserRef{}, fmt.Errorf("select user: %w", translate(err))
	}
	u.ID = domain.UserID(uid)
	return u, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m                    domain.Message
		id, sid, rid, kind   string
		body, image, replyTo *string
	)
	err := row.Scan(
		&id,
		&sid, &m.Sender.Username, &m.Sender.Avatar,
		&rid, &m.Recipient.Username, &m.Recipient.Avatar,
		&body, &image, &replyTo,
		&kind, &m.CreatedAt,
		&m.Read,
	)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = domain.MessageID(id)
	m.Sender.ID = domain.UserID(sid)
	m.Recipient.ID = domain.UserID(rid)
	m.Body = body
	m.Image = image
	if replyTo != nil {
		r := domain.MessageID(*replyTo)
		m.ReplyTo = &r
	}
	m.Kind = domain.MessageKind(kind)
	return m, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
