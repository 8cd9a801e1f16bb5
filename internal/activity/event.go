package activity

import (
	"encoding/json"
	"time"
)

// Type enumerates lifecycle events.
type Type string

const (
	TypeWalletCreated       Type = "wallet_created"
	TypeWalletDied          Type = "wallet_died"
	TypeChargeCollected     Type = "charge_collected"
	TypeAchievementUnlocked Type = "achievement_unlocked"
)

// Event is a persisted, numbered lifecycle event. An empty WalletName or
// Message and a zero AmountSats mean the field is absent.
type Event struct {
	ID         int64
	Type       Type
	WalletName string
	AmountSats int64
	Message    string
	CreatedAt  time.Time
}

type wireEvent struct {
	ID         int64   `json:"id"`
	Type       Type    `json:"type"`
	WalletName *string `json:"walletName"`
	AmountSats *int64  `json:"amountSats"`
	Message    *string `json:"message"`
	CreatedAt  int64   `json:"createdAt"`
}

// MarshalJSON renders the feed schema: absent fields as null, createdAt in
// unix seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{ID: e.ID, Type: e.Type, CreatedAt: e.CreatedAt.Unix()}
	if e.WalletName != "" {
		w.WalletName = &e.WalletName
	}
	if e.AmountSats != 0 {
		w.AmountSats = &e.AmountSats
	}
	if e.Message != "" {
		w.Message = &e.Message
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{ID: w.ID, Type: w.Type, CreatedAt: time.Unix(w.CreatedAt, 0).UTC()}
	if w.WalletName != nil {
		e.WalletName = *w.WalletName
	}
	if w.AmountSats != nil {
		e.AmountSats = *w.AmountSats
	}
	if w.Message != nil {
		e.Message = *w.Message
	}
	return nil
}
