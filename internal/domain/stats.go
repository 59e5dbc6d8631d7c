package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Rolling window widths used by the refresh pipeline. The "month" window is
// four weeks, matching the venue's trade-history horizon.
const (
	WeekWindow  = 7 * 24 * time.Hour
	MonthWindow = 28 * 24 * time.Hour
)

// iqrFence is the multiplier applied to the interquartile range when
// rejecting outlier sales. Deliberately tighter than the textbook 1.5: skin
// prices cluster hard and a single gift-priced sale otherwise drags a whole
// week's average.
const iqrFence = 0.3

// TitleStats holds the rolling price aggregates for one title. Title is the
// unique key. Averages are minor currency units (cents) rounded to two
// decimals; OfferPrices is the ascending list of current live offer prices,
// also in cents.
type TitleStats struct {
	Title       string
	LastUpdate  time.Time
	AvgMin      float64 // min of the non-zero week/month averages
	AvgWeek     float64
	AvgMonth    float64
	AvgAllTime  float64
	SalesMonth  int // month-window sale count, before outlier rejection
	AvgLast20   float64
	OfferPrices []int64
}

// OffersBelow counts live offers priced strictly below the given price.
func (s TitleStats) OffersBelow(price int64) int {
	n := 0
	for _, p := range s.OfferPrices {
		if p < price {
			n++
		}
	}
	return n
}

// EncodeOfferPrices serializes an offer price list for storage as a
// comma-joined string.
func EncodeOfferPrices(prices []int64) string {
	if len(prices) == 0 {
		return ""
	}
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = strconv.FormatInt(p, 10)
	}
	return strings.Join(parts, ", ")
}

// DecodeOfferPrices parses a stored offer price list. Blank fragments are
// skipped so a trailing separator does not poison the whole row.
func DecodeOfferPrices(s string) []int64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	prices := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		prices = append(prices, p)
	}
	return prices
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. The input does not need to be sorted.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// FilterOutliers drops sales whose price falls outside
// [Q1 - 0.3*IQR, Q3 + 0.3*IQR], preserving the relative order of the
// survivors. An empty input yields an empty output. When every price is
// equal the IQR is zero and all records survive.
func FilterOutliers(sales []SalesRecord) []SalesRecord {
	if len(sales) == 0 {
		return nil
	}

	prices := make([]float64, len(sales))
	for i, s := range sales {
		prices[i] = float64(s.Price)
	}
	q1 := Percentile(prices, 25)
	q3 := Percentile(prices, 75)
	iqr := q3 - q1
	lower := q1 - iqrFence*iqr
	upper := q3 + iqrFence*iqr

	kept := make([]SalesRecord, 0, len(sales))
	for _, s := range sales {
		p := float64(s.Price)
		if p >= lower && p <= upper {
			kept = append(kept, s)
		}
	}
	return kept
}

// ComputeTitleStats folds a title's full sale history and current live offer
// prices into TitleStats as of now. Sales may arrive in any order.
func ComputeTitleStats(title string, sales []SalesRecord, offerPrices []int64, now time.Time) TitleStats {
	weekAgo := now.Add(-WeekWindow)
	monthAgo := now.Add(-MonthWindow)

	var week, month []SalesRecord
	for _, s := range sales {
		if !s.Date.Before(weekAgo) {
			week = append(week, s)
		}
		if !s.Date.Before(monthAgo) {
			month = append(month, s)
		}
	}
	salesMonth := len(month)

	week = FilterOutliers(week)
	month = FilterOutliers(month)
	allTime := FilterOutliers(sales)

	avgWeek := meanPrice(week)
	avgMonth := meanPrice(month)
	avgAllTime := meanPrice(allTime)

	avgMin := 0.0
	switch {
	case avgWeek > 0 && avgMonth > 0:
		avgMin = math.Min(avgWeek, avgMonth)
	case avgWeek > 0:
		avgMin = avgWeek
	case avgMonth > 0:
		avgMin = avgMonth
	}

	recent := make([]SalesRecord, len(allTime))
	copy(recent, allTime)
	sort.Slice(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })
	if len(recent) > 20 {
		recent = recent[:20]
	}
	avgLast20 := meanPrice(recent)

	prices := make([]int64, len(offerPrices))
	copy(prices, offerPrices)
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	return TitleStats{
		Title:       title,
		LastUpdate:  now,
		AvgMin:      avgMin,
		AvgWeek:     avgWeek,
		AvgMonth:    avgMonth,
		AvgAllTime:  avgAllTime,
		SalesMonth:  salesMonth,
		AvgLast20:   avgLast20,
		OfferPrices: prices,
	}
}

// meanPrice returns the mean sale price in cents rounded to two decimals, or
// 0 for an empty set.
func meanPrice(sales []SalesRecord) float64 {
	if len(sales) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sales {
		sum += float64(s.Price)
	}
	return round2(sum / float64(len(sales)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
