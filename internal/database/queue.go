package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/reconcile"
)

// ReconcileQueue implements reconcile.Queue on PostgreSQL.
type ReconcileQueue struct {
	db DB
}

// NewReconcileQueue creates a queue over db. Call Migrate first.
func NewReconcileQueue(db DB) *ReconcileQueue {
	return &ReconcileQueue{db: db}
}

var _ reconcile.Queue = (*ReconcileQueue)(nil)

const markSQL = `
	INSERT INTO reconcile_marks (kind, entity_id, reason, marked_at)
	VALUES ($1, $2, $3, clock_timestamp())
	ON CONFLICT (kind, entity_id) DO UPDATE
	SET reason = EXCLUDED.reason, marked_at = EXCLUDED.marked_at
`

// Mark implements reconcile.Queue.
func (q *ReconcileQueue) Mark(ctx context.Context, id model.AggregateID, reason string) error {
	if _, err := q.db.Exec(ctx, markSQL, string(id.Kind), id.ID.String(), reason); err != nil {
		return fmt.Errorf("mark %s: %w", id, err)
	}
	return nil
}

// MarkBatch marks many aggregates in one round trip.
func (q *ReconcileQueue) MarkBatch(ctx context.Context, ids []model.AggregateID, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(markSQL, string(id.Kind), id.ID.String(), reason)
	}

	results := q.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, id := range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("mark %s: %w", id, err)
		}
	}
	return nil
}

// Pending implements reconcile.Queue.
func (q *ReconcileQueue) Pending(ctx context.Context, limit int) ([]reconcile.Mark, error) {
	rows, err := q.db.Query(ctx, `
		SELECT kind, entity_id, reason, attempts, marked_at
		FROM reconcile_marks
		ORDER BY attempts, marked_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconcile marks: %w", err)
	}
	defer rows.Close()

	var out []reconcile.Mark
	for rows.Next() {
		var (
			kind, entity string
			m            reconcile.Mark
		)
		if err := rows.Scan(&kind, &entity, &m.Reason, &m.Attempts, &m.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan reconcile mark: %w", err)
		}
		id, err := parseAggregateKey(kind, entity)
		if err != nil {
			return nil, err
		}
		m.ID = id
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reconcile marks: %w", err)
	}
	return out, nil
}

// Done implements reconcile.Queue.
func (q *ReconcileQueue) Done(ctx context.Context, m reconcile.Mark) error {
	_, err := q.db.Exec(ctx, `
		DELETE FROM reconcile_marks WHERE kind = $1 AND entity_id = $2 AND marked_at <= $3
	`, string(m.ID.Kind), m.ID.ID.String(), m.MarkedAt)
	if err != nil {
		return fmt.Errorf("clear mark %s: %w", m.ID, err)
	}
	return nil
}

// Failed implements reconcile.Queue.
func (q *ReconcileQueue) Failed(ctx context.Context, m reconcile.Mark, reason string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE reconcile_marks SET attempts = attempts + 1, reason = $3
		WHERE kind = $1 AND entity_id = $2
	`, string(m.ID.Kind), m.ID.ID.String(), reason)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", m.ID, err)
	}
	return nil
}

func parseAggregateKey(kind, entity string) (model.AggregateID, error) {
	k, err := model.ParseAggregateKind(kind)
	if err != nil {
		return model.AggregateID{}, err
	}
	id, err := model.ParseEntityID(entity)
	if err != nil {
		return model.AggregateID{}, err
	}
	return model.AggregateID{Kind: k, ID: id}, nil
}
