package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StockEventKind identifies the stock transition that produced an event.
type StockEventKind int

// Supported stock event kinds.
const (
	// StockPurchased indicates units were removed by a purchase.
	StockPurchased StockEventKind = iota + 1

	// StockRestocked indicates units were added by an administrator.
	StockRestocked
)

// String returns the compact representation used on the wire and in logs.
func (k StockEventKind) String() string {
	switch k {
	case StockPurchased:
		return "purchase"
	case StockRestocked:
		return "restock"
	default:
		return "unknown"
	}
}

func (k StockEventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *StockEventKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "purchase":
		*k = StockPurchased
	case "restock":
		*k = StockRestocked
	default:
		return fmt.Errorf("unknown stock event kind %q", name)
	}
	return nil
}

// StockEvent describes a completed quantity change on a sweet.
// It is published to the stock events channel after the change is stored.
type StockEvent struct {
	// SweetID identifies the sweet whose stock changed.
	SweetID string `json:"sweet_id"`

	// Name is the sweet's name at the time of the change.
	Name string `json:"name"`

	// Kind is the transition that produced the event.
	Kind StockEventKind `json:"kind"`

	// Delta is the signed quantity change (negative for purchases).
	Delta int `json:"delta"`

	// Quantity is the stock level after the change.
	Quantity int `json:"quantity"`

	// OccurredAt is when the change was applied.
	OccurredAt time.Time `json:"occurred_at"`
}
