package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kueskilink/kueskilink/internal/format"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// topProductLimit caps the ranking shown on the dashboard.
const topProductLimit = 10

// Service assembles the dashboard figures, caching each section under a
// versioned Redis key.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a stats service. Clock defaults to time.Now.
func NewService(store Store, cache *Cache, logger *slog.Logger, clock func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, cache: cache, logger: logger, now: clock}
}

// SalesSummary is the totals section of the dashboard.
type SalesSummary struct {
	Total        float64 `json:"total"`
	TotalDisplay string  `json:"total_display"`
	Best         BestDay `json:"best_day"`
	Payments     int     `json:"payments"`
}

// Summary returns the settled totals and the best day.
func (s *Service) Summary(ctx context.Context, actor shared.Actor) (*SalesSummary, error) {
	key, err := s.cache.BuildKey(ctx, "stats", "summary", fmt.Sprint(actor.CompanyID))
	if err != nil {
		return nil, err
	}
	var summary SalesSummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		payments, err := s.store.Payments(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		total := TotalSales(payments)
		return &SalesSummary{
			Total:        total,
			TotalDisplay: format.Money(total),
			Best:         FindBestDay(payments),
			Payments:     len(payments),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// WeekChart is the weekly bar chart section.
type WeekChart struct {
	WeekStart time.Time   `json:"week_start"`
	Days      []DayBucket `json:"days"`
}

// Week returns the current week's settlement counts.
func (s *Service) Week(ctx context.Context, actor shared.Actor) (*WeekChart, error) {
	weekStart := WeekOf(s.now())
	key, err := s.cache.BuildKey(ctx, "stats", "week",
		fmt.Sprint(actor.CompanyID), weekStart.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	var chart WeekChart
	err = s.cache.FetchJSON(ctx, key, &chart, func(ctx context.Context) (any, error) {
		payments, err := s.store.Payments(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		return &WeekChart{
			WeekStart: weekStart,
			Days:      BucketByDay(payments, weekStart),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

// Products returns the settled-quantity product ranking.
func (s *Service) Products(ctx context.Context, actor shared.Actor) ([]TopProduct, error) {
	key, err := s.cache.BuildKey(ctx, "stats", "products", fmt.Sprint(actor.CompanyID))
	if err != nil {
		return nil, err
	}
	var ranking []TopProduct
	err = s.cache.FetchJSON(ctx, key, &ranking, func(ctx context.Context) (any, error) {
		sales, err := s.store.ProductSales(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		return TopProducts(sales, topProductLimit), nil
	})
	if err != nil {
		return nil, err
	}
	return ranking, nil
}

// Movement is one row of the recent activity feed.
type Movement struct {
	Amount        float64   `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	Customer      string    `json:"customer"`
	Concept       string    `json:"concept"`
	Day           time.Time `json:"day"`
}

// Movements returns the most recent settlements with compact amounts for
// the dashboard feed.
func (s *Service) Movements(ctx context.Context, actor shared.Actor, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 5
	}
	key, err := s.cache.BuildKey(ctx, "stats", "movements",
		fmt.Sprint(actor.CompanyID), fmt.Sprint(limit))
	if err != nil {
		return nil, err
	}
	var feed []Movement
	err = s.cache.FetchJSON(ctx, key, &feed, func(ctx context.Context) (any, error) {
		payments, err := s.store.Payments(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		if len(payments) > limit {
			payments = payments[:limit]
		}
		out := make([]Movement, 0, len(payments))
		for _, p := range payments {
			out = append(out, Movement{
				Amount:        p.Amount,
				AmountDisplay: format.CompactAmount(p.Amount),
				Customer:      p.Customer,
				Concept:       p.Concept,
				Day:           p.Day,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// LinkKinds returns the paid/active/overdue/canceled partition.
func (s *Service) LinkKinds(ctx context.Context, actor shared.Actor) (*LinkKindCounts, error) {
	key, err := s.cache.BuildKey(ctx, "stats", "kinds", fmt.Sprint(actor.CompanyID))
	if err != nil {
		return nil, err
	}
	var counts LinkKindCounts
	err = s.cache.FetchJSON(ctx, key, &counts, func(ctx context.Context) (any, error) {
		txs, err := s.store.Links(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		kinds := CountLinksByKind(txs, s.now())
		return &kinds, nil
	})
	if err != nil {
		return nil, err
	}
	return &counts, nil
}
