package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/union-data/internal/aggregate"
	"github.com/rickgao/union-data/internal/model"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// AggregateStore implements aggregate.Store on PostgreSQL.
type AggregateStore struct {
	db DB
}

// NewAggregateStore creates a store over db. Call Migrate first.
func NewAggregateStore(db DB) *AggregateStore {
	return &AggregateStore{db: db}
}

var _ aggregate.Store = (*AggregateStore)(nil)

// Get implements aggregate.Store.
func (s *AggregateStore) Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error) {
	var (
		version int64
		doc     []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT version, doc FROM aggregates WHERE kind = $1 AND entity_id = $2
	`, string(id.Kind), id.ID.String()).Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate %s: %w", id, err)
	}
	return decodeAggregate(doc, version)
}

// Save implements aggregate.Store.
func (s *AggregateStore) Save(ctx context.Context, agg *model.Aggregate) (*model.Aggregate, error) {
	saved := agg.Clone()
	saved.Version = agg.Version + 1
	doc, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate %s: %w", agg.ID, err)
	}

	if agg.Version == 0 {
		_, err := s.db.Exec(ctx, `
			INSERT INTO aggregates (kind, entity_id, blockchain, version, multicurrency, doc, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, string(agg.ID.Kind), agg.ID.ID.String(), string(agg.ID.ID.Blockchain),
			saved.Version, saved.Multicurrency, doc, saved.LastUpdatedAt)
		if isUniqueViolation(err) {
			return nil, aggregate.ErrVersionConflict
		}
		if err != nil {
			return nil, fmt.Errorf("insert aggregate %s: %w", agg.ID, err)
		}
		return saved, nil
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE aggregates
		SET version = $4, multicurrency = $5, doc = $6, updated_at = $7
		WHERE kind = $1 AND entity_id = $2 AND version = $3
	`, string(agg.ID.Kind), agg.ID.ID.String(), agg.Version,
		saved.Version, saved.Multicurrency, doc, saved.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update aggregate %s: %w", agg.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, aggregate.ErrVersionConflict
	}
	return saved, nil
}

// Delete implements aggregate.Store.
func (s *AggregateStore) Delete(ctx context.Context, id model.AggregateID, version int64) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM aggregates WHERE kind = $1 AND entity_id = $2 AND version = $3
	`, string(id.Kind), id.ID.String(), version)
	if err != nil {
		return fmt.Errorf("delete aggregate %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return aggregate.ErrVersionConflict
	}
	return nil
}

// FindByIDs implements aggregate.Store.
func (s *AggregateStore) FindByIDs(ctx context.Context, ids []model.AggregateID) ([]*model.Aggregate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	kinds := make([]string, len(ids))
	entities := make([]string, len(ids))
	for i, id := range ids {
		kinds[i] = string(id.Kind)
		entities[i] = id.ID.String()
	}

	rows, err := s.db.Query(ctx, `
		SELECT a.version, a.doc
		FROM aggregates a
		JOIN unnest($1::text[], $2::text[]) AS k(kind, entity_id)
			ON a.kind = k.kind AND a.entity_id = k.entity_id
	`, kinds, entities)
	if err != nil {
		return nil, fmt.Errorf("find aggregates: %w", err)
	}
	return collectAggregates(rows)
}

// FindMulticurrency implements aggregate.Store.
func (s *AggregateStore) FindMulticurrency(ctx context.Context, q aggregate.MulticurrencyQuery) ([]*model.Aggregate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT version, doc
		FROM aggregates
		WHERE kind = $1 AND blockchain = $2 AND multicurrency AND entity_id > $3
		ORDER BY entity_id
		LIMIT $4
	`, string(q.Kind), string(q.Blockchain), q.After, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("find multicurrency aggregates: %w", err)
	}
	return collectAggregates(rows)
}

func collectAggregates(rows pgx.Rows) ([]*model.Aggregate, error) {
	defer rows.Close()

	var out []*model.Aggregate
	for rows.Next() {
		var (
			version int64
			doc     []byte
		)
		if err := rows.Scan(&version, &doc); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		agg, err := decodeAggregate(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}

// decodeAggregate parses a stored document; the version column is authoritative.
func decodeAggregate(doc []byte, version int64) (*model.Aggregate, error) {
	var agg model.Aggregate
	if err := json.Unmarshal(doc, &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate: %w", err)
	}
	agg.Version = version
	return &agg, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
