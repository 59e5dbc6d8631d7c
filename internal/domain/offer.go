package domain

import (
	"strings"
	"time"
)

// Offer is a single live market offer as delivered by the venue scan.
// Prices are minor currency units (cents); conversion from the venue's wire
// representation happens in the platform layer.
type Offer struct {
	ID        string // venue offer identifier, unique per listing
	ClassID   string
	Title     string
	Price     int64 // cents
	CreatedAt time.Time
	Category  string
	GameID    string
}

// SalesRecord is one historical sale of a title. Records are never persisted
// individually; they are folded into TitleStats by the refresh pipeline.
type SalesRecord struct {
	Title string
	Price int64 // cents
	Date  time.Time
}

// InventoryItem is an asset currently sitting in the venue-side inventory.
type InventoryItem struct {
	ClassID string
	AssetID string
	Title   string
}

// DeniedTitle reports whether a title contains any of the given keywords.
// Matching is case-insensitive on both sides; blank titles are always denied.
func DeniedTitle(title string, denylist []string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, word := range denylist {
		if strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}
