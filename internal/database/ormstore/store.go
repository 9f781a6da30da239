package ormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rickgao/union-data/internal/aggregate"
	"github.com/rickgao/union-data/internal/model"
)

type aggregateRow struct {
	Kind          string `gorm:"primaryKey;size:16"`
	EntityID      string `gorm:"primaryKey;size:512"`
	Blockchain    string `gorm:"size:16;index:idx_aggregates_multicurrency,priority:2"`
	Multicurrency bool   `gorm:"index:idx_aggregates_multicurrency,priority:1"`
	Version       int64
	Doc           string `gorm:"type:text"`
	TouchedAt     time.Time
}

func (aggregateRow) TableName() string { return "aggregates" }

func (r *aggregateRow) decode() (*model.Aggregate, error) {
	var agg model.Aggregate
	if err := json.Unmarshal([]byte(r.Doc), &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate %s %s: %w", r.Kind, r.EntityID, err)
	}
	agg.Version = r.Version
	return &agg, nil
}

// Store implements aggregate.Store with GORM.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store over a migrated db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ aggregate.Store = (*Store)(nil)

// Get implements aggregate.Store.
func (s *Store) Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error) {
	var row aggregateRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND entity_id = ?", string(id.Kind), id.ID.String()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate %s: %w", id, err)
	}
	return row.decode()
}

// Save implements aggregate.Store.
func (s *Store) Save(ctx context.Context, agg *model.Aggregate) (*model.Aggregate, error) {
	saved := agg.Clone()
	saved.Version = agg.Version + 1
	doc, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate %s: %w", agg.ID, err)
	}

	if agg.Version == 0 {
		row := aggregateRow{
			Kind:          string(agg.ID.Kind),
			EntityID:      agg.ID.ID.String(),
			Blockchain:    string(agg.ID.ID.Blockchain),
			Multicurrency: saved.Multicurrency,
			Version:       saved.Version,
			Doc:           string(doc),
			TouchedAt:     saved.LastUpdatedAt,
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return nil, fmt.Errorf("insert aggregate %s: %w", agg.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, aggregate.ErrVersionConflict
		}
		return saved, nil
	}

	res := s.db.WithContext(ctx).Model(&aggregateRow{}).
		Where("kind = ? AND entity_id = ? AND version = ?", string(agg.ID.Kind), agg.ID.ID.String(), agg.Version).
		Updates(map[string]any{
			"version":       saved.Version,
			"multicurrency": saved.Multicurrency,
			"doc":           string(doc),
			"touched_at":    saved.LastUpdatedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update aggregate %s: %w", agg.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, aggregate.ErrVersionConflict
	}
	return saved, nil
}

// Delete implements aggregate.Store.
func (s *Store) Delete(ctx context.Context, id model.AggregateID, version int64) error {
	res := s.db.WithContext(ctx).
		Where("kind = ? AND entity_id = ? AND version = ?", string(id.Kind), id.ID.String(), version).
		Delete(&aggregateRow{})
	if res.Error != nil {
		return fmt.Errorf("delete aggregate %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return aggregate.ErrVersionConflict
	}
	return nil
}

// FindByIDs implements aggregate.Store.
func (s *Store) FindByIDs(ctx context.Context, ids []model.AggregateID) ([]*model.Aggregate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([][]any, len(ids))
	for i, id := range ids {
		keys[i] = []any{string(id.Kind), id.ID.String()}
	}

	var rows []aggregateRow
	if err := s.db.WithContext(ctx).Where("(kind, entity_id) IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find aggregates: %w", err)
	}
	return decodeRows(rows)
}

// FindMulticurrency implements aggregate.Store.
func (s *Store) FindMulticurrency(ctx context.Context, q aggregate.MulticurrencyQuery) ([]*model.Aggregate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	var rows []aggregateRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND blockchain = ? AND multicurrency = ? AND entity_id > ?",
			string(q.Kind), string(q.Blockchain), true, q.After).
		Order("entity_id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find multicurrency aggregates: %w", err)
	}
	return decodeRows(rows)
}

func decodeRows(rows []aggregateRow) ([]*model.Aggregate, error) {
	out := make([]*model.Aggregate, 0, len(rows))
	for i := range rows {
		agg, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}
