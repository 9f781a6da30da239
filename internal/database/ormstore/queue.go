package ormstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/reconcile"
)

type markRow struct {
	Kind     string `gorm:"primaryKey;size:16"`
	EntityID string `gorm:"primaryKey;size:512"`
	Reason   string `gorm:"type:text"`
	Attempts int
	// MarkedAt is Unix microseconds; integer comparison keeps Done exact on every dialect.
	MarkedAt int64 `gorm:"index"`
}

func (markRow) TableName() string { return "reconcile_marks" }

// Queue implements reconcile.Queue with GORM.
type Queue struct {
	db *gorm.DB

	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewQueue creates a queue over a migrated db.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

var _ reconcile.Queue = (*Queue)(nil)

// stamp returns a strictly increasing microsecond timestamp for this process.
func (q *Queue) stamp() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.now().UnixMicro()
	if t <= q.last {
		t = q.last + 1
	}
	q.last = t
	return t
}

// Mark implements reconcile.Queue.
func (q *Queue) Mark(ctx context.Context, id model.AggregateID, reason string) error {
	row := markRow{
		Kind:     string(id.Kind),
		EntityID: id.ID.String(),
		Reason:   reason,
		MarkedAt: q.stamp(),
	}
	err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "marked_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("mark %s: %w", id, err)
	}
	return nil
}

// MarkBatch marks every id in one statement.
func (q *Queue) MarkBatch(ctx context.Context, ids []model.AggregateID, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	stamp := q.stamp()
	rows := make([]markRow, 0, len(ids))
	seen := make(map[model.AggregateID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, markRow{
			Kind:     string(id.Kind),
			EntityID: id.ID.String(),
			Reason:   reason,
			MarkedAt: stamp,
		})
	}
	err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "marked_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("mark %d aggregates: %w", len(rows), err)
	}
	return nil
}

// Pending implements reconcile.Queue.
func (q *Queue) Pending(ctx context.Context, limit int) ([]reconcile.Mark, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []markRow
	if err := q.db.WithContext(ctx).Order("attempts").Order("marked_at").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reconcile marks: %w", err)
	}

	out := make([]reconcile.Mark, 0, len(rows))
	for _, r := range rows {
		kind, err := model.ParseAggregateKind(r.Kind)
		if err != nil {
			return nil, err
		}
		id, err := model.ParseEntityID(r.EntityID)
		if err != nil {
			return nil, err
		}
		out = append(out, reconcile.Mark{
			ID:       model.AggregateID{Kind: kind, ID: id},
			Reason:   r.Reason,
			Attempts: r.Attempts,
			MarkedAt: time.UnixMicro(r.MarkedAt).UTC(),
		})
	}
	return out, nil
}

// Done implements reconcile.Queue.
func (q *Queue) Done(ctx context.Context, m reconcile.Mark) error {
	err := q.db.WithContext(ctx).
		Where("kind = ? AND entity_id = ? AND marked_at <= ?", string(m.ID.Kind), m.ID.ID.String(), m.MarkedAt.UnixMicro()).
		Delete(&markRow{}).Error
	if err != nil {
		return fmt.Errorf("clear mark %s: %w", m.ID, err)
	}
	return nil
}

// Failed implements reconcile.Queue.
func (q *Queue) Failed(ctx context.Context, m reconcile.Mark, reason string) error {
	err := q.db.WithContext(ctx).Model(&markRow{}).
		Where("kind = ? AND entity_id = ?", string(m.ID.Kind), m.ID.ID.String()).
		Updates(map[string]any{
			"attempts": gorm.Expr("attempts + 1"),
			"reason":   reason,
		}).Error
	if err != nil {
		return fmt.Errorf("record failure %s: %w", m.ID, err)
	}
	return nil
}
