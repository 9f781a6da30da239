package httpapi

import (
	"context"

	"github.com/rickgao/union-data/internal/model"
)

// lookup loads the stored aggregates of ids keyed by id.
func (s *Server) lookup(ctx context.Context, ids []model.AggregateID) (map[model.AggregateID]*model.Aggregate, error) {
	aggs, err := s.deps.Aggregates.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[model.AggregateID]*model.Aggregate, len(aggs))
	for _, a := range aggs {
		out[a.ID] = a
	}
	return out, nil
}

func (s *Server) enrichItems(ctx context.Context, items []model.Item) error {
	ids := make([]model.AggregateID, len(items))
	for i, it := range items {
		ids[i] = model.ItemAggregateID(it.ID)
	}
	found, err := s.lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		if agg, ok := found[ids[i]]; ok {
			items[i].BestSellOrder = agg.BestSellOrder
			items[i].BestBidOrder = agg.BestBidOrder
			items[i].LastSale = agg.LastSale
		}
	}
	return nil
}

func (s *Server) enrichOwnerships(ctx context.Context, owns []model.Ownership) error {
	ids := make([]model.AggregateID, len(owns))
	for i, o := range owns {
		ids[i] = model.OwnershipAggregateID(o.ItemID, o.Owner)
	}
	found, err := s.lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range owns {
		if agg, ok := found[ids[i]]; ok {
			owns[i].BestSellOrder = agg.BestSellOrder
		}
	}
	return nil
}

func (s *Server) enrichCollections(ctx context.Context, colls []model.Collection) error {
	ids := make([]model.AggregateID, len(colls))
	for i, c := range colls {
		ids[i] = model.CollectionAggregateID(c.ID)
	}
	found, err := s.lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range colls {
		if agg, ok := found[ids[i]]; ok {
			colls[i].BestSellOrder = agg.BestSellOrder
			colls[i].BestBidOrder = agg.BestBidOrder
		}
	}
	return nil
}
