package gmaps

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// URLKind tags the outcome of parsing a maps URL. Unresolved is not an
// error: it tells the pipeline to fall through to the next strategy.
type URLKind int

const (
	URLUnresolved URLKind = iota
	URLPlaceID
	URLCoordinates
)

type ParsedURL struct {
	Kind      URLKind
	PlaceID   string
	Latitude  float64
	Longitude float64
}

// Each matcher encodes one known URL shape. They run in priority order so
// new shapes can be appended without touching the callers.
var urlMatchers = []func(string) (ParsedURL, bool){
	matchPlaceIDParam,
	matchDataToken,
	matchCoordinates,
}

var (
	dataTokenRe   = regexp.MustCompile(`data=[^?#]*!1s([^!?#&]+)`)
	coordinatesRe = regexp.MustCompile(`@(-?\d+\.?\d*),(-?\d+\.?\d*)`)
)

// ParseURL extracts a place identifier or raw coordinates from a Google
// Maps sharing URL. Pure, no network.
func ParseURL(rawURL string) ParsedURL {
	for _, match := range urlMatchers {
		if parsed, ok := match(rawURL); ok {
			return parsed
		}
	}

	return ParsedURL{Kind: URLUnresolved}
}

func matchPlaceIDParam(rawURL string) (ParsedURL, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ParsedURL{}, false
	}

	q := u.Query()

	for _, param := range []string{"query_place_id", "place_id"} {
		if id := q.Get(param); id != "" {
			return ParsedURL{Kind: URLPlaceID, PlaceID: id}, true
		}
	}

	return ParsedURL{}, false
}

func matchDataToken(rawURL string) (ParsedURL, bool) {
	matches := dataTokenRe.FindStringSubmatch(rawURL)
	if len(matches) < 2 {
		return ParsedURL{}, false
	}

	id, err := url.PathUnescape(matches[1])
	if err != nil {
		id = matches[1]
	}

	return ParsedURL{Kind: URLPlaceID, PlaceID: id}, true
}

func matchCoordinates(rawURL string) (ParsedURL, bool) {
	if !strings.Contains(rawURL, "@") {
		return ParsedURL{}, false
	}

	matches := coordinatesRe.FindStringSubmatch(rawURL)
	if len(matches) < 3 {
		return ParsedURL{}, false
	}

	lat, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return ParsedURL{}, false
	}

	lng, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return ParsedURL{}, false
	}

	return ParsedURL{Kind: URLCoordinates, Latitude: lat, Longitude: lng}, true
}
