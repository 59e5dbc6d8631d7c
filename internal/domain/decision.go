package domain

import "time"

// Decision is the outcome of evaluating one live offer against a title's
// aggregates and fee schedule. Monetary fields are cents.
type Decision struct {
	Accept        bool
	Reason        string // populated on rejection
	DiscountRate  float64
	ProbSellPrice float64
	ProbProfit    float64
	OffersBelow   int
}

// RefreshReport summarizes one pass of the stats refresh scheduler.
type RefreshReport struct {
	Visited int      // titles handed to a worker
	Updated int      // titles whose aggregates were persisted
	Skipped int      // blank or denylisted titles
	NoData  []string // titles the venue returned nothing for
	Elapsed time.Duration
}
