package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() AdRecord {
	return AdRecord{
		ID:          "a",
		ImageURL:    "https://cdn/a.png",
		RedirectURL: "https://a",
		Status:      "active",
	}
}

func TestAdRecordToAd(t *testing.T) {
	limit := 5
	r := validRecord()
	r.Clicks = 2
	r.MaxClicks = &limit

	ad, err := r.ToAd()
	require.NoError(t, err)
	got, ok := ad.MaxClicks.Get()
	assert.True(t, ok)
	assert.Equal(t, 5, got)
	assert.False(t, ad.ClickCeilingReached())

	ad.Clicks = 5
	assert.True(t, ad.ClickCeilingReached())

	r.MaxClicks = nil
	ad, err = r.ToAd()
	require.NoError(t, err)
	assert.Equal(t, "unlimited", ad.MaxClicks.String())
	ad.Clicks = 1 << 20
	assert.False(t, ad.ClickCeilingReached())
}

func TestAdRecordImpressionLimit(t *testing.T) {
	var r AdRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","image_url":"i","redirect_url":"r","status":"active","impressions":4,"max_impressions":5}`), &r))

	ad, err := r.ToAd()
	require.NoError(t, err)
	assert.Equal(t, 4, ad.Impressions)
	assert.False(t, ad.ImpressionLimitReached())

	ad.Impressions++
	assert.True(t, ad.ImpressionLimitReached())

	r.MaxImpressions = nil
	ad, err = r.ToAd()
	require.NoError(t, err)
	assert.False(t, ad.ImpressionLimitReached())
}

func TestAdRecordValidate(t *testing.T) {
	neg := -1
	tests := []struct {
		name   string
		mutate func(*AdRecord)
	}{
		{"missing id", func(r *AdRecord) { r.ID = " " }},
		{"missing image", func(r *AdRecord) { r.ImageURL = "" }},
		{"missing redirect", func(r *AdRecord) { r.RedirectURL = "" }},
		{"unknown status", func(r *AdRecord) { r.Status = "archived" }},
		{"negative clicks", func(r *AdRecord) { r.Clicks = -3 }},
		{"negative max clicks", func(r *AdRecord) { r.MaxClicks = &neg }},
		{"negative impressions", func(r *AdRecord) { r.Impressions = -1 }},
		{"negative max impressions", func(r *AdRecord) { r.MaxImpressions = &neg }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			_, err := r.ToAd()
			assert.Error(t, err)
		})
	}
}

func TestAdJSONEncodesLimit(t *testing.T) {
	out, err := json.Marshal(Ad{ID: "a", MaxClicks: LimitOf(3)})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"max_clicks":3`)

	out, err = json.Marshal(Ad{ID: "a"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"max_clicks":null`)
}

func TestFetchErrorMessages(t *testing.T) {
	assert.Equal(t, "inventory server error: status 503", ServerError(503).Error())
	assert.Contains(t, NetworkError(assert.AnError).Error(), "network")
	assert.ErrorIs(t, MalformedError(assert.AnError), assert.AnError)
}
