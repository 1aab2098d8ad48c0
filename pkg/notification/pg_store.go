package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peoplehub/notify/pkg/pg"
)

// PGStore is a PostgreSQL implementation of Store and DeliveryLog backed by a
// pgx connection pool. Every mutation is a single-record UPDATE guarded by a
// status predicate in the WHERE clause, which enforces the state machine
// without explicit locking.
//
// Expected schema:
//
//	CREATE TABLE notifications (
//	    id             TEXT PRIMARY KEY,
//	    type           TEXT NOT NULL,
//	    channel        TEXT NOT NULL,
//	    priority       TEXT NOT NULL,
//	    user_id        TEXT,
//	    email          TEXT,
//	    phone_number   TEXT,
//	    device_token   TEXT,
//	    subject        TEXT,
//	    message        TEXT NOT NULL,
//	    data           JSONB,
//	    correlation_id TEXT,
//	    source         TEXT,
//	    status         TEXT NOT NULL DEFAULT 'PENDING',
//	    retry_count    INT NOT NULL DEFAULT 0,
//	    max_retries    INT NOT NULL DEFAULT 3,
//	    error_message  TEXT,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    sent_at        TIMESTAMPTZ,
//	    delivered_at   TIMESTAMPTZ,
//	    failed_at      TIMESTAMPTZ,
//	    read_at        TIMESTAMPTZ
//	);
//
//	CREATE TABLE notification_delivery_log (
//	    id              TEXT PRIMARY KEY,
//	    notification_id TEXT NOT NULL,
//	    action          TEXT NOT NULL,
//	    details         TEXT,
//	    timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed notification store.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool cannot be nil")
	}
	return &PGStore{pool: pool}, nil
}

const recordColumns = `id, type, channel, priority, user_id, email, phone_number, device_token,
	subject, message, data, correlation_id, source, status, retry_count, max_retries,
	error_message, created_at, sent_at, delivered_at, failed_at, read_at`

func (s *PGStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if !rec.Addressed() {
		return ErrMissingRecipient
	}
	if rec.Message == "" {
		return ErrMissingMessage
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.MaxRetries == 0 {
		rec.MaxRetries = DefaultMaxRetries
	}
	rec.Status = StatusPending

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO notifications
		 (id, type, channel, priority, user_id, email, phone_number, device_token,
		  subject, message, data, correlation_id, source, status, retry_count,
		  max_retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, string(rec.Type), string(rec.Channel), string(rec.Priority),
		nilIfEmpty(rec.UserID), nilIfEmpty(rec.Email), nilIfEmpty(rec.PhoneNumber),
		nilIfEmpty(rec.DeviceToken), nilIfEmpty(rec.Subject), rec.Message, data,
		nilIfEmpty(rec.CorrelationID), nilIfEmpty(rec.Source), string(rec.Status),
		rec.RetryCount, rec.MaxRetries, rec.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("failed to insert notification %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM notifications WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return rec, nil
}

func (s *PGStore) MarkDelivered(ctx context.Context, id string, at time.Time) (*Record, error) {
	// The status predicate makes duplicate acks a no-op: a second call matches
	// zero rows and falls through to re-reading the already delivered record.
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET
			status = $1, sent_at = $2, delivered_at = $2, error_message = NULL
		 WHERE id = $3 AND status = $4`,
		string(StatusDelivered), at, id, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification %s delivered: %w", id, err)
	}

	rec, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if tag.RowsAffected() == 0 && rec.Status != StatusDelivered {
		return nil, fmt.Errorf("%w: cannot deliver from %s", ErrInvalidState, rec.Status)
	}
	return rec, nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id string, at time.Time, errMsg string) (*Record, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET status = $1, failed_at = $2, error_message = $3
		 WHERE id = $4 AND status = $5`,
		string(StatusFailed), at, errMsg, id, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification %s failed: %w", id, err)
	}

	rec, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if tag.RowsAffected() == 0 && rec.Status != StatusFailed {
		return nil, fmt.Errorf("%w: cannot fail from %s", ErrInvalidState, rec.Status)
	}
	return rec, nil
}

func (s *PGStore) ResetForRetry(ctx context.Context, id string) (*Record, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET
			status = $1, retry_count = retry_count + 1,
			error_message = NULL, failed_at = NULL
		 WHERE id = $2 AND status = $3 AND retry_count < max_retries`,
		string(StatusPending), id, string(StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset notification %s for retry: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish between missing, wrong state, and exhausted budget.
		rec, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if rec.Status != StatusFailed {
			return nil, fmt.Errorf("%w: cannot retry from %s", ErrInvalidState, rec.Status)
		}
		return nil, ErrRetryExhausted
	}

	return s.Get(ctx, id)
}

func (s *PGStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read_at = $1 WHERE id = $2 AND read_at IS NULL`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either already read (idempotent no-op) or missing.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *PGStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Channel != "" {
		add("channel = $%d", string(f.Channel))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Since != nil {
		add("created_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("created_at <= $%d", *f.Until)
	}

	query := `SELECT ` + recordColumns + ` FROM notifications`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", scanErr)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Append implements DeliveryLog.
func (s *PGStore) Append(ctx context.Context, entry LogEntry) error {
	if entry.NotificationID == "" {
		return fmt.Errorf("log entry requires a notification id")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_delivery_log (id, notification_id, action, details, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.NotificationID, string(entry.Action), nilIfEmpty(entry.Details), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append delivery log for %s: %w", entry.NotificationID, err)
	}
	return nil
}

// ListByNotification implements DeliveryLog.
func (s *PGStore) ListByNotification(ctx context.Context, notificationID string) ([]LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, notification_id, action, COALESCE(details, ''), timestamp
		 FROM notification_delivery_log
		 WHERE notification_id = $1
		 ORDER BY timestamp ASC`,
		notificationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery log for %s: %w", notificationID, err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var action string
		if err := rows.Scan(&e.ID, &e.NotificationID, &action, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan delivery log row: %w", err)
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                                  Record
		typ, channel, priority, status       string
		userID, email, phone, token, subject *string
		correlationID, source, errMsg        *string
		data                                 []byte
	)

	err := row.Scan(&rec.ID, &typ, &channel, &priority, &userID, &email, &phone, &token,
		&subject, &rec.Message, &data, &correlationID, &source, &status, &rec.RetryCount,
		&rec.MaxRetries, &errMsg, &rec.CreatedAt, &rec.SentAt, &rec.DeliveredAt,
		&rec.FailedAt, &rec.ReadAt)
	if err != nil {
		return nil, err
	}

	rec.Type = Type(typ)
	rec.Channel = Channel(channel)
	rec.Priority = Priority(priority)
	rec.Status = Status(status)
	rec.UserID = deref(userID)
	rec.Email = deref(email)
	rec.PhoneNumber = deref(phone)
	rec.DeviceToken = deref(token)
	rec.Subject = deref(subject)
	rec.CorrelationID = deref(correlationID)
	rec.Source = deref(source)
	rec.ErrorMessage = deref(errMsg)

	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification data: %w", err)
		}
	}

	return &rec, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
