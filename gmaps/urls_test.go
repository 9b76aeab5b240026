package gmaps_test

import (
	"testing"

	"github.com/lucasrcezimbra/missas/gmaps"
)

func TestParseURLPlaceID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "query_place_id parameter",
			url:      "https://www.google.com/maps/search/?api=1&query=test&query_place_id=ChIJN1t_tDeuEmsRUsoyG83frY4",
			expected: "ChIJN1t_tDeuEmsRUsoyG83frY4",
		},
		{
			name:     "place_id parameter",
			url:      "https://www.google.com/maps/place/?q=x&place_id=ChIJ5_jZvo26swcRVVF77qTA_QU",
			expected: "ChIJ5_jZvo26swcRVVF77qTA_QU",
		},
		{
			name:     "data segment token",
			url:      "https://www.google.com/maps/place/Igreja+Matriz/@-5.7945046,-35.2108267,17z/data=!3m1!4b1!4m6!3m5!1sChIJ123ABC!8m2!3d-5.7945046!4d-35.2082518!16s%2Fg%2F11c5m7wz3q",
			expected: "ChIJ123ABC",
		},
		{
			name:     "data token after unshortening",
			url:      "https://www.google.com/maps/place/Igreja/@-5.79,-35.21,17z/data=!3m1!4b1!4m6!3m5!1sChIJXYZ!8m2!3d-5.79!4d-35.21!16s",
			expected: "ChIJXYZ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := gmaps.ParseURL(tt.url)
			if parsed.Kind != gmaps.URLPlaceID {
				t.Fatalf("ParseURL(%q).Kind = %v, expected URLPlaceID", tt.url, parsed.Kind)
			}
			if parsed.PlaceID != tt.expected {
				t.Errorf("ParseURL(%q).PlaceID = %q, expected %q", tt.url, parsed.PlaceID, tt.expected)
			}
		})
	}
}

func TestParseURLCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		lat, lng float64
	}{
		{
			name: "bare coordinates",
			url:  "https://www.google.com/maps/@-5.7945046,-35.2108267,17z",
			lat:  -5.7945046,
			lng:  -35.2108267,
		},
		{
			name: "place path with coordinates",
			url:  "https://www.google.com/maps/place/Igreja/@-5.7945,-35.2110,17z",
			lat:  -5.7945,
			lng:  -35.2110,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := gmaps.ParseURL(tt.url)
			if parsed.Kind != gmaps.URLCoordinates {
				t.Fatalf("ParseURL(%q).Kind = %v, expected URLCoordinates", tt.url, parsed.Kind)
			}
			if parsed.Latitude != tt.lat || parsed.Longitude != tt.lng {
				t.Errorf("ParseURL(%q) = (%f, %f), expected (%f, %f)",
					tt.url, parsed.Latitude, parsed.Longitude, tt.lat, tt.lng)
			}
		})
	}
}

func TestParseURLPlaceIDWinsOverCoordinates(t *testing.T) {
	url := "https://www.google.com/maps/place/Igreja/@-5.79,-35.21,17z/data=!4m6!3m5!1sChIJ123ABC!8m2"

	parsed := gmaps.ParseURL(url)
	if parsed.Kind != gmaps.URLPlaceID {
		t.Fatalf("expected place id to take priority, got kind %v", parsed.Kind)
	}
	if parsed.PlaceID != "ChIJ123ABC" {
		t.Errorf("PlaceID = %q, expected ChIJ123ABC", parsed.PlaceID)
	}
}

func TestParseURLUnresolved(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "plain maps URL", url: "https://www.google.com/maps"},
		{name: "empty URL", url: ""},
		{name: "not a URL", url: "not-a-valid-url"},
		{name: "search without ids", url: "https://www.google.com/maps/search/igreja+matriz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := gmaps.ParseURL(tt.url)
			if parsed.Kind != gmaps.URLUnresolved {
				t.Errorf("ParseURL(%q).Kind = %v, expected URLUnresolved", tt.url, parsed.Kind)
			}
		})
	}
}
