package models

import (
	"encoding/json"
	"time"
)

// EngineState 定义了需要持久化的所有关键数据
// It is the GridConfig/Position/DCAState triple (plus the level states)
// an engine needs to resume after a restart without double-submitting
// orders for levels that were already armed.
type EngineState struct {
	Symbol         SymbolInfo          `json:"symbol"`
	Mode           TradingMode         `json:"mode"`
	Version        int                 `json:"version"` // state model version, for future migrations
	Grid           GridConfig          `json:"grid"`
	Levels         []GridLevel         `json:"levels"`
	Position       Position            `json:"position"`
	DCA            DCAConfig           `json:"dca"`
	DCAState       DCAState            `json:"dca_state"`
	Snapshot       PerformanceSnapshot `json:"snapshot"`
	LastUpdateTime time.Time           `json:"last_update_time"`
}

// StateVersion is the current EngineState schema version.
const StateVersion = 1

// EventType labels a persisted engine event.
type EventType string

const (
	EventFill       EventType = "fill"
	EventRebalance  EventType = "rebalance"
	EventDCATrigger EventType = "dca_trigger"
	EventHalt       EventType = "halt"
	EventStart      EventType = "start"
	EventStop       EventType = "stop"
)

// EventRecord is the journal entry emitted on every state-relevant
// transition. The payload is the JSON encoding of the triggering object
// (a Trade, a GridConfig, ...).
type EventRecord struct {
	Symbol    string          `json:"symbol"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
