package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type AdStatus string

const (
	StatusActive AdStatus = "active"
	StatusPaused AdStatus = "paused"
)

// Limit is an optional ceiling on clicks or impressions. The zero value means unlimited.
type Limit struct {
	max int
	set bool
}

func Unlimited() Limit {
	return Limit{}
}

func LimitOf(n int) Limit {
	return Limit{max: n, set: true}
}

// Get returns the ceiling and whether one is configured
func (l Limit) Get() (int, bool) {
	return l.max, l.set
}

func (l Limit) String() string {
	if !l.set {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.max)
}

// MarshalJSON encodes an unlimited ceiling as null
func (l Limit) MarshalJSON() ([]byte, error) {
	if !l.set {
		return []byte("null"), nil
	}
	return json.Marshal(l.max)
}

// Ad is the engine's view of a single promotable record
type Ad struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url"`
	RedirectURL string     `json:"redirect_url"`
	Status      AdStatus   `json:"status"`
	Clicks      int        `json:"clicks"`
	MaxClicks   Limit      `json:"max_clicks"`

	// Impressions is the inventory count plus showings since the last load
	Impressions    int   `json:"impressions"`
	MaxImpressions Limit `json:"max_impressions"`
}

// ClickCeilingReached reports whether the local click count has hit MaxClicks
func (a Ad) ClickCeilingReached() bool {
	limit, ok := a.MaxClicks.Get()
	return ok && a.Clicks >= limit
}

// ImpressionLimitReached reports whether the ad has used up its own impression budget
func (a Ad) ImpressionLimitReached() bool {
	limit, ok := a.MaxImpressions.Get()
	return ok && a.Impressions >= limit
}

// AdRecord is the inventory wire format
type AdRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	RedirectURL string `json:"redirect_url"`
	Status      string `json:"status"`
	Clicks      int    `json:"clicks"`
	MaxClicks   *int   `json:"max_clicks"`

	Impressions    int  `json:"impressions"`
	MaxImpressions *int `json:"max_impressions"`
}

var (
	errMissingID          = errors.New("missing id")
	errMissingImageURL    = errors.New("missing image_url")
	errMissingRedirectURL = errors.New("missing redirect_url")
)

// Validate checks that the record is usable as an Ad
func (r AdRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(r.ImageURL) == "" {
		return errMissingImageURL
	}
	if strings.TrimSpace(r.RedirectURL) == "" {
		return errMissingRedirectURL
	}
	switch AdStatus(r.Status) {
	case StatusActive, StatusPaused:
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.Clicks < 0 {
		return fmt.Errorf("negative clicks %d", r.Clicks)
	}
	if r.MaxClicks != nil && *r.MaxClicks < 0 {
		return fmt.Errorf("negative max_clicks %d", *r.MaxClicks)
	}
	if r.Impressions < 0 {
		return fmt.Errorf("negative impressions %d", r.Impressions)
	}
	if r.MaxImpressions != nil && *r.MaxImpressions < 0 {
		return fmt.Errorf("negative max_impressions %d", *r.MaxImpressions)
	}
	return nil
}

func (r AdRecord) ToAd() (Ad, error) {
	if err := r.Validate(); err != nil {
		return Ad{}, fmt.Errorf("invalid ad record %q: %w", r.ID, err)
	}

	clickLimit, impressionLimit := Unlimited(), Unlimited()
	if r.MaxClicks != nil {
		clickLimit = LimitOf(*r.MaxClicks)
	}
	if r.MaxImpressions != nil {
		impressionLimit = LimitOf(*r.MaxImpressions)
	}

	return Ad{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		ImageURL:       r.ImageURL,
		RedirectURL:    r.RedirectURL,
		Status:         AdStatus(r.Status),
		Clicks:         r.Clicks,
		MaxClicks:      clickLimit,
		Impressions:    r.Impressions,
		MaxImpressions: impressionLimit,
	}, nil
}
