// Package stats aggregates payment link activity into the merchant
// dashboard figures: totals, weekly charts, top products and link counts.
// The aggregation functions are pure; persistence and caching live in the
// repository and cache layers.
package stats

import (
	"sort"
	"time"

	"github.com/kueskilink/kueskilink/internal/links"
)

// paidStatuses is the set counted as revenue.
func isPaid(s links.Status) bool {
	return s == links.StatusApproved || s == links.StatusPaidCash
}

// Payment is a settled transaction slice used by the aggregations. Day is
// the updated_at calendar day, which is when the link settled.
type Payment struct {
	Amount   float64   `json:"amount"`
	Customer string    `json:"customer"`
	Concept  string    `json:"concept"`
	Day      time.Time `json:"day"`
}

// PaymentDay truncates a settlement timestamp to its calendar day.
func PaymentDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TotalSales sums the settled amounts. Order independent.
func TotalSales(payments []Payment) float64 {
	var total float64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}

// BestDay is the calendar day with the highest settled amount.
type BestDay struct {
	Day    time.Time `json:"day"`
	Amount float64   `json:"amount"`
}

// FindBestDay returns the day with the largest settled total. Ties resolve
// to the earliest day so the result does not depend on input order. The
// zero BestDay means no settled payments exist.
func FindBestDay(payments []Payment) BestDay {
	totals := make(map[time.Time]float64, len(payments))
	for _, p := range payments {
		totals[PaymentDay(p.Day)] += p.Amount
	}
	var best BestDay
	for day, amount := range totals {
		if best.Day.IsZero() || amount > best.Amount || (amount == best.Amount && day.Before(best.Day)) {
			best = BestDay{Day: day, Amount: amount}
		}
	}
	return best
}

// WeekOf returns the Monday starting the week containing t, at midnight.
func WeekOf(t time.Time) time.Time {
	day := PaymentDay(t)
	diff := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -diff)
}

// DayBucket is one bar of the weekly chart.
type DayBucket struct {
	Day    time.Time `json:"day"`
	Count  int       `json:"count"`
	Height float64   `json:"height"`
}

// BucketByDay counts settled payments per calendar day across the 7-day
// week starting at weekStart, and computes each bar's height as a
// percentage of the week maximum. An all-zero week uses 10 as the
// denominator, and empty days keep the 1% visual floor the chart has
// always drawn.
func BucketByDay(payments []Payment, weekStart time.Time) []DayBucket {
	start := PaymentDay(weekStart)
	counts := make(map[time.Time]int, len(payments))
	for _, p := range payments {
		counts[PaymentDay(p.Day)]++
	}

	week := make([]DayBucket, 7)
	max := 0
	for i := range week {
		day := start.AddDate(0, 0, i)
		week[i] = DayBucket{Day: day, Count: counts[day]}
		if week[i].Count > max {
			max = week[i].Count
		}
	}
	if max == 0 {
		max = 10
	}
	for i := range week {
		if week[i].Count == 0 {
			week[i].Height = 1
			continue
		}
		week[i].Height = float64(week[i].Count) / float64(max) * 100
	}
	return week
}

// ProductSale is a line item slice feeding the top products ranking.
type ProductSale struct {
	ProductID int64
	Name      string
	Quantity  float64
	Status    links.Status
}

// TopProduct is one row of the ranking.
type TopProduct struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"total_quantity"`
}

// TopProducts groups settled line items by product and ranks them by total
// quantity, descending. Ties resolve by name so the order is stable.
func TopProducts(sales []ProductSale, limit int) []TopProduct {
	grouped := make(map[int64]*TopProduct, len(sales))
	for _, sale := range sales {
		if !isPaid(sale.Status) {
			continue
		}
		entry, ok := grouped[sale.ProductID]
		if !ok {
			entry = &TopProduct{ProductID: sale.ProductID, Name: sale.Name}
			grouped[sale.ProductID] = entry
		}
		entry.Quantity += sale.Quantity
	}

	out := make([]TopProduct, 0, len(grouped))
	for _, entry := range grouped {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LinkKindCounts buckets every link of a company into exactly one kind.
type LinkKindCounts struct {
	Paid     int `json:"paid"`
	Active   int `json:"active"`
	Overdue  int `json:"overdue"`
	Canceled int `json:"canceled"`
}

// CountLinksByKind classifies by effective status as observed at now. The
// four kinds partition the status space, so the counts always sum to the
// number of links.
func CountLinksByKind(txs []links.Transaction, now time.Time) LinkKindCounts {
	var counts LinkKindCounts
	for i := range txs {
		switch links.Derive(&txs[i], now) {
		case links.StatusApproved, links.StatusPaidCash:
			counts.Paid++
		case links.StatusCanceled, links.StatusDenied:
			counts.Canceled++
		case links.StatusExpired, links.StatusKueskiExpired:
			counts.Overdue++
		default:
			counts.Active++
		}
	}
	return counts
}
