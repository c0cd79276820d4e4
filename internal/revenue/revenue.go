// Package revenue reports sales totals over completed orders.
package revenue

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Tung090505/Shop-game-sub000/internal/clock"
)

// Source sums completed order prices created in [from, to). A zero from has no lower bound.
type Source interface {
	SumCompleted(ctx context.Context, from, to time.Time) (int64, error)
}

// Day is one calendar-day bucket.
type Day struct {
	Date  string `json:"date"`
	Total int64  `json:"total"`
}

// Summary holds the dashboard totals.
type Summary struct {
	Today     int64  `json:"today"`
	Month     int64  `json:"month"`
	Lifetime  int64  `json:"lifetime"`
	Last7Days []Day  `json:"last_7_days"`
	Timezone  string `json:"timezone"`
}

// Aggregator computes summaries with calendar days taken in loc.
type Aggregator struct {
	source Source
	loc    *time.Location
	clock  clock.Clock
}

// NewAggregator builds an aggregator. A nil loc means UTC.
func NewAggregator(source Source, loc *time.Location, c clock.Clock) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Aggregator{source: source, loc: loc, clock: c}
}

// Summary computes totals as of now. The seven-day window ends with today.
func (a *Aggregator) Summary(ctx context.Context, now time.Time) (Summary, error) {
	local := now.In(a.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, a.loc)

	out := Summary{Timezone: a.loc.String(), Last7Days: make([]Day, 0, 7)}
	var err error
	if out.Month, err = a.source.SumCompleted(ctx, monthStart, tomorrow); err != nil {
		return Summary{}, err
	}
	if out.Lifetime, err = a.source.SumCompleted(ctx, time.Time{}, tomorrow); err != nil {
		return Summary{}, err
	}
	for i := 6; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		total, err := a.source.SumCompleted(ctx, start, start.AddDate(0, 0, 1))
		if err != nil {
			return Summary{}, err
		}
		out.Last7Days = append(out.Last7Days, Day{Date: start.Format(time.DateOnly), Total: total})
	}
	out.Today = out.Last7Days[len(out.Last7Days)-1].Total
	return out, nil
}

// Handler serves GET /api/v1/revenue.
func (a *Aggregator) Handler(c *fiber.Ctx) error {
	s, err := a.Summary(c.UserContext(), a.clock.Now())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(s)
}
