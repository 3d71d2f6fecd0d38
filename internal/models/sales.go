package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QuestSales is the per-day sold ticket projection for a quest.
type QuestSales struct {
	bun.BaseModel `bun:"table:quest_sales"`

	QuestID  string `bun:"quest_id,pk" json:"quest_id"`
	SaleDate string `bun:"sale_date,pk" json:"sale_date"`
	Tickets  int64  `bun:"tickets,notnull" json:"tickets"`
	Revenue  int64  `bun:"revenue,notnull" json:"revenue"`
}

// CountedReservation records which reservations the projection has applied.
type CountedReservation struct {
	bun.BaseModel `bun:"table:counted_reservations"`

	ReservationID string    `bun:"reservation_id,pk"`
	CountedAt     time.Time `bun:"counted_at,notnull"`
}

type SalesSummary struct {
	QuestID      string       `json:"quest_id"`
	TicketsSold  int64        `json:"tickets_sold"`
	TotalRevenue int64        `json:"total_revenue"`
	Daily        []QuestSales `json:"daily"`
}
