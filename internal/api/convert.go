package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/union-data/internal/model"
)

// ParseDecimal parses a decimal string. Returns zero for empty or invalid input.
func ParseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTimestamp parses an ISO 8601 timestamp into UTC.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

func optionalID(chain model.Blockchain, local string) *model.EntityID {
	if local == "" {
		return nil
	}
	id := model.NewEntityID(chain, local)
	return &id
}

// ToModel converts an APIItem to model.Item.
func (i *APIItem) ToModel(chain model.Blockchain) model.Item {
	return model.Item{
		ID:            model.NewEntityID(chain, i.ID),
		Collection:    i.Collection,
		Creators:      i.Creators,
		Supply:        ParseDecimal(i.Supply),
		Deleted:       i.Deleted,
		LastUpdatedAt: ParseTimestamp(i.LastUpdatedAt),
	}
}

// ToModel converts an APIOwnership to model.Ownership.
func (o *APIOwnership) ToModel(chain model.Blockchain) model.Ownership {
	item := model.NewEntityID(chain, o.ItemID)
	id := model.NewEntityID(chain, o.ID)
	if o.ID == "" {
		id = model.OwnershipID(item, o.Owner)
	}
	return model.Ownership{
		ID:        id,
		ItemID:    item,
		Owner:     o.Owner,
		Value:     ParseDecimal(o.Value),
		CreatedAt: ParseTimestamp(o.CreatedAt),
	}
}

// ToModel converts an APICollection to model.Collection.
func (c *APICollection) ToModel(chain model.Blockchain) model.Collection {
	return model.Collection{
		ID:            model.NewEntityID(chain, c.ID),
		Name:          c.Name,
		Symbol:        c.Symbol,
		Owner:         c.Owner,
		LastUpdatedAt: ParseTimestamp(c.LastUpdatedAt),
	}
}

// ToModel converts an APIActivity to model.Activity.
func (a *APIActivity) ToModel(chain model.Blockchain) model.Activity {
	return model.Activity{
		ID:       model.NewEntityID(chain, a.ID),
		Type:     model.ActivityType(strings.ToUpper(a.Type)),
		ItemID:   optionalID(chain, a.ItemID),
		From:     a.From,
		To:       a.To,
		Value:    ParseDecimal(a.Value),
		Price:    ParseDecimal(a.Price),
		Currency: a.Currency,
		Date:     ParseTimestamp(a.Date),
		Reverted: a.Reverted,
	}
}

// ToModel converts an APIOrder to model.Order.
func (o *APIOrder) ToModel(chain model.Blockchain) model.Order {
	order := model.Order{
		ID:            o.ID,
		Blockchain:    chain,
		Platform:      o.Platform,
		Side:          model.OrderSide(strings.ToUpper(o.Side)),
		Status:        model.OrderStatus(strings.ToUpper(o.Status)),
		Maker:         o.Maker,
		Taker:         o.Taker,
		ItemID:        optionalID(chain, o.ItemID),
		CollectionID:  optionalID(chain, o.CollectionID),
		Currency:      o.Currency,
		Price:         ParseDecimal(o.Price),
		MakeStock:     ParseDecimal(o.MakeStock),
		Origins:       o.Origins,
		CreatedAt:     ParseTimestamp(o.CreatedAt),
		LastUpdatedAt: ParseTimestamp(o.LastUpdatedAt),
	}
	if ended := ParseTimestamp(o.EndedAt); !ended.IsZero() {
		order.EndedAt = &ended
	}
	return order
}
