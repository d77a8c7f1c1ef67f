package models

import "time"

// AlertRecord is one journaled alert as delivered (or attempted) to the notifier.
type AlertRecord struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}
