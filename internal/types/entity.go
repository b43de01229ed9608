package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityKind classifies a backend-tracked entity.
type EntityKind string

const (
	EntityKindInstrument EntityKind = "instrument"
	EntityKindAccount    EntityKind = "account"
	EntityKindOrder      EntityKind = "order"
)

// EntityStatus is the backend-reported status of an entity.
type EntityStatus string

const (
	EntityStatusActive    EntityStatus = "active"
	EntityStatusHalted    EntityStatus = "halted"
	EntityStatusClosed    EntityStatus = "closed"
	EntityStatusUnknown   EntityStatus = "unknown"
	EntityStatusSuspended EntityStatus = "suspended"
)

// EntityState holds the latest known fields of a single backend-tracked
// entity. Values are immutable once placed into a snapshot; the aggregator
// replaces the whole struct on update rather than mutating in place.
type EntityState struct {
	// ID is the stable backend identifier (e.g. "BTC-PERP").
	ID string
	// Kind classifies the entity.
	Kind EntityKind
	// Price is the latest known price. Decimal end to end so backend
	// precision is never truncated through float conversion.
	Price decimal.Decimal
	// Status is the backend-reported status.
	Status EntityStatus
	// Fields carries additional backend fields not modeled explicitly.
	Fields map[string]string
	// UpdatedAt is the backend timestamp of the update that produced
	// this state.
	UpdatedAt time.Time
}
