package models

// Sequence names
const (
	SequenceBill  = "bill"
	SequenceOrder = "order"
)

// Sequence is a named monotonic counter backing human-readable ids.
type Sequence struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64  `gorm:"not null;default:0"`
}
