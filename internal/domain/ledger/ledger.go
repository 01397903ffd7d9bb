// Package ledger models the append-only XP and Trust ledgers (C6) and the
// XP award formula that feeds them. Every row, once inserted, is immutable
// by the HX102/HX401 triggers — this package never exposes an update path.
package ledger

import "time"

// XPEntry is one row of the append-only xp_ledger.
type XPEntry struct {
	ID                   string
	UserID               string
	TaskID               string
	MoneyStateLockTaskID string // UNIQUE when set: one XP award per released escrow
	BaseXP               int64
	DecayFactor          string // NUMERIC(10,4) serialized, e.g. "0.8231"
	EffectiveXP          int64
	StreakMultiplier     string // NUMERIC(10,4) serialized, e.g. "1.2000"
	FinalXP              int64
	Reason               string
	CreatedAt            time.Time
}

// TrustEntry is one row of the append-only trust_ledger.
type TrustEntry struct {
	ID        string
	UserID    string
	Delta     int
	Reason    string
	CreatedAt time.Time
}
