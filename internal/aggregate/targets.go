package aggregate

import "github.com/rickgao/union-data/internal/model"

// Target is one aggregate touched by an order.
type Target struct {
	ID    model.AggregateID
	Owner string
}

// Targets resolves the aggregates an order contributes to. An item sell touches the item
// and the maker's ownership, an item bid touches the item, and a collection-level order
// touches its collection.
func Targets(o model.Order) []Target {
	switch {
	case o.ItemID != nil:
		targets := []Target{{ID: model.ItemAggregateID(*o.ItemID)}}
		if o.Side == model.SideSell && o.Maker != "" {
			targets = append(targets, Target{
				ID:    model.OwnershipAggregateID(*o.ItemID, o.Maker),
				Owner: o.Maker,
			})
		}
		return targets
	case o.CollectionID != nil:
		return []Target{{ID: model.CollectionAggregateID(*o.CollectionID)}}
	default:
		return nil
	}
}
