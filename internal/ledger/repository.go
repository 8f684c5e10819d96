package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"payhook/internal/constants"
	pkgerrors "payhook/pkg/errors"
)

type Repository interface {
	FindLatest(ctx context.Context, eventID, eventType string) (*Entry, error)
	Upsert(ctx context.Context, rec Record) (string, error)
	Claim(ctx context.Context, rec Record, reprocessable []Status) (*Entry, bool, error)
	Requeue(ctx context.Context, eventID string) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, event_id, event_type, status, notes, constituent_id, gateway_customer_id,
	subscription_id, transaction_id, test_flag, attempts, processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e           Entry
		status      string
		constituent sql.NullString
		customer    sql.NullString
		sub         sql.NullString
		tx          sql.NullString
		processedAt sql.NullTime
	)

	if err := row.Scan(
		&e.ID, &e.EventID, &e.EventType, &status, &e.Notes,
		&constituent, &customer, &sub, &tx,
		&e.TestFlag, &e.Attempts, &processedAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	e.Status = Status(status)
	e.ConstituentID = constituent.String
	e.GatewayCustomerID = customer.String
	e.SubscriptionID = sub.String
	e.TransactionID = tx.String
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}

	return &e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// FindLatest returns the most recently updated entry matching eventID and/or
// eventType. At least one must be set.
func (r *PostgresRepository) FindLatest(ctx context.Context, eventID, eventType string) (*Entry, error) {
	if eventID == "" && eventType == "" {
		return nil, pkgerrors.ErrValidation.WithMessage("event id or event type is required")
	}

	query := `
		SELECT ` + entryColumns + `
		FROM webhook_events
		WHERE ($1::text = '' OR event_id = $1::text) AND ($2::text = '' OR event_type = $2::text)
		ORDER BY updated_at DESC
		LIMIT 1
	`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, eventID, eventType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err).WithMessage("no ledger entry found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}

	return entry, nil
}

// Upsert writes rec keyed by event id. Terminal statuses stamp processed_at.
func (r *PostgresRepository) Upsert(ctx context.Context, rec Record) (string, error) {
	if rec.EventID == "" {
		return "", pkgerrors.ErrValidation.WithMessage("event id is required")
	}
	if !rec.Status.Valid() {
		return "", pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid status %q", rec.Status))
	}

	var processedAt sql.NullTime
	if rec.Status.Done() || rec.Status == StatusError {
		processedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	query := `
		INSERT INTO webhook_events (
			id, event_id, event_type, status, notes, constituent_id, gateway_customer_id,
			subscription_id, transaction_id, test_flag, attempts, processed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			event_type = COALESCE(NULLIF(EXCLUDED.event_type, ''), webhook_events.event_type),
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			constituent_id = COALESCE(EXCLUDED.constituent_id, webhook_events.constituent_id),
			gateway_customer_id = COALESCE(EXCLUDED.gateway_customer_id, webhook_events.gateway_customer_id),
			subscription_id = COALESCE(EXCLUDED.subscription_id, webhook_events.subscription_id),
			transaction_id = COALESCE(EXCLUDED.transaction_id, webhook_events.transaction_id),
			test_flag = EXCLUDED.test_flag,
			processed_at = EXCLUDED.processed_at,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		uuid.NewString(), rec.EventID, rec.EventType, string(rec.Status), rec.Notes,
		nullable(rec.ConstituentID), nullable(rec.GatewayCustomerID),
		nullable(rec.SubscriptionID), nullable(rec.TransactionID),
		rec.TestFlag, processedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert ledger entry: %w", err)
	}

	return id, nil
}

// Claim atomically marks the event processing. It inserts a new row, or
// takes over an existing one whose status is in reprocessable. When the
// existing row is in any other status nothing changes and the current entry
// is returned with claimed=false.
func (r *PostgresRepository) Claim(ctx context.Context, rec Record, reprocessable []Status) (*Entry, bool, error) {
	if rec.EventID == "" {
		return nil, false, pkgerrors.ErrValidation.WithMessage("event id is required")
	}

	query := `
		INSERT INTO webhook_events (id, event_id, event_type, status, notes, test_flag, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'processing', '', $4, 1, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			status = 'processing',
			event_type = COALESCE(NULLIF(EXCLUDED.event_type, ''), webhook_events.event_type),
			attempts = webhook_events.attempts + 1,
			updated_at = NOW()
		WHERE webhook_events.status = ANY($5::text[])
		RETURNING ` + entryColumns

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), rec.EventID, rec.EventType, rec.TestFlag,
		pq.Array(statusStrings(reprocessable)),
	))
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim ledger entry: %w", err)
	}

	existing, err := r.FindLatest(ctx, rec.EventID, "")
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Requeue resets an entry to received so the next delivery processes it.
func (r *PostgresRepository) Requeue(ctx context.Context, eventID string) (*Entry, error) {
	query := `
		UPDATE webhook_events
		SET status = 'received', processed_at = NULL, updated_at = NOW()
		WHERE event_id = $1
		RETURNING ` + entryColumns

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err).WithMessage(fmt.Sprintf("event %s not found", eventID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to requeue ledger entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		conditions []string
		args       []interface{}
	)

	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.EventID != "" {
		add("event_id", filter.EventID)
	}
	if filter.EventType != "" {
		add("event_type", filter.EventType)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + entryColumns + ` FROM webhook_events`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}
