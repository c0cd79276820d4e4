package prize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrEmptyPrizeTable is returned by Draw before any fee is charged.
	ErrEmptyPrizeTable = errors.New("prize table is empty")
	// ErrPrizeNotFound indicates an unknown prize entry id.
	ErrPrizeNotFound = errors.New("prize entry not found")
	// ErrInvalidPrize covers bad kinds, negative weights and similar admin mistakes.
	ErrInvalidPrize = errors.New("invalid prize entry")
)

// Kind is what a prize entry pays out.
type Kind string

const (
	KindBalance Kind = "balance"
	KindItem    Kind = "item"
	KindEmpty   Kind = "empty"
)

// Entry is one slice of the prize wheel. Weights are relative and need not sum to 1.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Value     int64     `json:"value"`
	Weight    float64   `json:"weight"`
	Position  int       `json:"position"`
	ImageURL  string    `json:"image_url,omitempty"`
	Color     string    `json:"color,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Entry) validate() error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPrize)
	case e.Kind != KindBalance && e.Kind != KindItem && e.Kind != KindEmpty:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPrize, e.Kind)
	case math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0:
		return fmt.Errorf("%w: weight must be a non-negative number", ErrInvalidPrize)
	case e.Value < 0:
		return fmt.Errorf("%w: value must not be negative", ErrInvalidPrize)
	case e.Kind == KindBalance && e.Value == 0:
		return fmt.Errorf("%w: balance prizes need a value", ErrInvalidPrize)
	}
	return nil
}

// Table stores the prize wheel. List returns entries in draw order: position, then id.
type Table interface {
	List(ctx context.Context) ([]Entry, error)
	Upsert(ctx context.Context, e Entry) (Entry, error)
	Delete(ctx context.Context, id string) error
}
