package streak

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// HabitKey scopes every streak record to one (owner, habit) pair.
type HabitKey struct {
	OwnerID string `json:"owner_id"`
	HabitID string `json:"habit_id"`
}

func (k HabitKey) String() string {
	return k.OwnerID + "/" + k.HabitID
}

type Interval struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	OwnerID   string      `json:"owner_id" db:"owner_id"`
	HabitID   string      `json:"habit_id" db:"habit_id"`
	StartDate civil.Date  `json:"start_date" db:"start_date"`
	EndDate   *civil.Date `json:"end_date" db:"end_date"`
	IsLongest bool        `json:"longest" db:"longest"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

func (iv Interval) Span() Span {
	return Span{Start: iv.StartDate, End: iv.EndDate}
}

func (iv Interval) IsCurrent() bool {
	return iv.EndDate == nil
}

func (iv Interval) Inverted() bool {
	return iv.EndDate != nil && iv.StartDate.After(*iv.EndDate)
}

// NewIntervals materializes derived spans as records for key.
func NewIntervals(key HabitKey, spans []Span, now time.Time) []Interval {
	out := make([]Interval, 0, len(spans))
	for _, s := range spans {
		out = append(out, Interval{
			ID:        uuid.New(),
			OwnerID:   key.OwnerID,
			HabitID:   key.HabitID,
			StartDate: s.Start,
			EndDate:   s.End,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

type FreezeDay struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	HabitID   string     `json:"habit_id" db:"habit_id"`
	Date      civil.Date `json:"date" db:"freeze_date"`
	Reason    string     `json:"reason" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// RestoreRecord is written once per successful restore payment. PaymentKey is
// unique across all records.
type RestoreRecord struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	HabitID     string     `json:"habit_id" db:"habit_id"`
	IntervalID  uuid.UUID  `json:"interval_id" db:"interval_id"`
	LostAt      civil.Date `json:"lost_at" db:"lost_at"`
	PreviousEnd civil.Date `json:"previous_end" db:"previous_end"`
	RestoredOn  civil.Date `json:"restored_on" db:"restored_on"`
	RestoredAt  time.Time  `json:"restored_at" db:"restored_at"`
	PaymentKey  string     `json:"payment_key" db:"payment_key"`
	PriceID     string     `json:"price_id" db:"price_id"`
	PriceCents  int64      `json:"price_cents" db:"price_cents"`
	Currency    string     `json:"currency" db:"currency"`
}

const DefaultRestorePriceCents int64 = 99

const DefaultRestoreCurrency = "USD"
