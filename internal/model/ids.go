package model

import (
	"errors"
	"fmt"
	"strings"
)

// Blockchain identifies one shard backend.
type Blockchain string

// Supported blockchains.
const (
	Ethereum Blockchain = "ETHEREUM"
	Polygon  Blockchain = "POLYGON"
	Flow     Blockchain = "FLOW"
	Tezos    Blockchain = "TEZOS"
	Solana   Blockchain = "SOLANA"
)

// ErrInvalidID is returned when an identifier cannot be parsed.
var ErrInvalidID = errors.New("invalid entity id")

// EntityID is a (blockchain, local id) pair.
type EntityID struct {
	Blockchain Blockchain
	Value      string
}

// NewEntityID builds an EntityID.
func NewEntityID(chain Blockchain, value string) EntityID {
	return EntityID{Blockchain: chain, Value: value}
}

// ParseEntityID parses "BLOCKCHAIN:value". The value itself may contain colons
// (e.g. "ETHEREUM:0xabc:42" for contract + token id).
func ParseEntityID(s string) (EntityID, error) {
	chain, value, ok := strings.Cut(s, ":")
	if !ok || chain == "" || value == "" {
		return EntityID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return EntityID{Blockchain: Blockchain(strings.ToUpper(chain)), Value: value}, nil
}

func (id EntityID) String() string {
	return string(id.Blockchain) + ":" + id.Value
}

// IsZero reports whether the id is unset.
func (id EntityID) IsZero() bool {
	return id.Blockchain == "" && id.Value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id EntityID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *EntityID) UnmarshalText(b []byte) error {
	parsed, err := ParseEntityID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// OwnershipID builds the id of the ownership of item by owner.
func OwnershipID(item EntityID, owner string) EntityID {
	return EntityID{Blockchain: item.Blockchain, Value: item.Value + ":" + owner}
}

// SplitOwnershipID splits an ownership id into its item id and owner.
// The owner is the segment after the last colon.
func SplitOwnershipID(id EntityID) (EntityID, string, bool) {
	i := strings.LastIndex(id.Value, ":")
	if i <= 0 || i == len(id.Value)-1 {
		return EntityID{}, "", false
	}
	return EntityID{Blockchain: id.Blockchain, Value: id.Value[:i]}, id.Value[i+1:], true
}

// AggregateKind selects which kind of entity an aggregate summarizes.
type AggregateKind string

// Aggregate kinds.
const (
	KindItem       AggregateKind = "ITEM"
	KindOwnership  AggregateKind = "OWNERSHIP"
	KindCollection AggregateKind = "COLLECTION"
)

// ParseAggregateKind accepts upper or lower case kind names.
func ParseAggregateKind(s string) (AggregateKind, error) {
	switch k := AggregateKind(strings.ToUpper(s)); k {
	case KindItem, KindOwnership, KindCollection:
		return k, nil
	default:
		return "", fmt.Errorf("unknown aggregate kind %q", s)
	}
}

// AggregateID identifies one persisted aggregate.
type AggregateID struct {
	Kind AggregateKind `json:"kind"`
	ID   EntityID      `json:"id"`
}

func (a AggregateID) String() string {
	return string(a.Kind) + ":" + a.ID.String()
}

// ItemAggregateID is shorthand for the item aggregate of id.
func ItemAggregateID(id EntityID) AggregateID {
	return AggregateID{Kind: KindItem, ID: id}
}

// OwnershipAggregateID is shorthand for the ownership aggregate of item by owner.
func OwnershipAggregateID(item EntityID, owner string) AggregateID {
	return AggregateID{Kind: KindOwnership, ID: OwnershipID(item, owner)}
}

// CollectionAggregateID is shorthand for the collection aggregate of id.
func CollectionAggregateID(id EntityID) AggregateID {
	return AggregateID{Kind: KindCollection, ID: id}
}
