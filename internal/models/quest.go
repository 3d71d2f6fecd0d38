package models

import "github.com/uptrace/bun"

// Quest is the catalog's view of a bookable quest. Prices are in minor units.
type Quest struct {
	bun.BaseModel `bun:"table:quests"`

	ID               string `bun:"id,pk" json:"id"`
	Title            string `bun:"title,notnull" json:"title"`
	TicketsAvailable int64  `bun:"tickets_available,notnull" json:"tickets_available"`
	PricePerTicket   int64  `bun:"price_per_ticket,notnull" json:"price_per_ticket"`
	Currency         string `bun:"currency,nullzero" json:"currency,omitempty"`
}

// QuestInventory is a point-in-time view of the ledger counters for one quest.
type QuestInventory struct {
	QuestID   string `json:"quest_id"`
	Available int64  `json:"tickets_available"`
	Held      int64  `json:"tickets_held"`
}

func (q QuestInventory) Free() int64 {
	return q.Available - q.Held
}
