package domain

import (
	"context"
	"time"
)

// interface for the backend ad inventory
type InventoryClient interface {
	// FetchEligibleAds blocks until the inventory answers; failures are *FetchError
	FetchEligibleAds(ctx context.Context) ([]AdRecord, error)
	// ReportClick and ReportImpression are fire-and-forget
	ReportClick(adID string)
	ReportImpression(adID string)
}

// interface for the surface that displays ads
type Presenter interface {
	Show(ad Ad)
	Hide()
}

type ActivityKind string

const (
	ActivityShow  ActivityKind = "show"
	ActivityClick ActivityKind = "click"
)

// per-day, per-ad session tallies
type AdActivity struct {
	Date   string `json:"date"`
	AdID   string `json:"ad_id"`
	Shows  int    `json:"shows"`
	Clicks int    `json:"clicks"`
}

// interface for in-memory session activity
type ActivityRepository interface {
	Record(ctx context.Context, adID string, kind ActivityKind, at time.Time) error
	GetByDateRange(ctx context.Context, from, to time.Time) ([]AdActivity, error)
}
