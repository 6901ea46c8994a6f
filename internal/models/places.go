package models

import (
	"strings"
)

// Location type constants accepted by the autocomplete callable
const (
	LocationTypeCity         = "city"
	LocationTypeNeighborhood = "neighborhood"
	LocationTypeAddress      = "address"
	LocationTypeFacility     = "facility"
)

// primaryTypeFilters maps a location type to the upstream includedPrimaryTypes allow-list
var primaryTypeFilters = map[string][]string{
	LocationTypeCity: {
		"locality",
		"administrative_area_level_3",
	},
	LocationTypeNeighborhood: {
		"neighborhood",
		"sublocality",
		"locality",
	},
	// Addresses also match establishments and buildings, which helps in areas
	// with sparse street data
	LocationTypeAddress: {
		"street_address",
		"premise",
		"subpremise",
		"route",
		"establishment",
		"point_of_interest",
		"hospital",
		"health",
	},
	LocationTypeFacility: {
		"hospital",
		"health",
		"doctor",
		"clinic",
		"pharmacy",
		"medical_lab",
	},
}

// PrimaryTypesFor returns a copy of the category filter for a location type,
// or nil when the type is unknown or empty.
func PrimaryTypesFor(locationType string) []string {
	types, ok := primaryTypeFilters[locationType]
	if !ok {
		return nil
	}
	out := make([]string, len(types))
	copy(out, types)
	return out
}

// SearchRequest is the payload of the places autocomplete callable
type SearchRequest struct {
	Input        string `json:"input"`
	LocationType string `json:"locationType,omitempty"`
	RegionCode   string `json:"regionCode,omitempty"`
	CityContext  string `json:"cityContext,omitempty"`
}

// QueryText returns the text sent upstream, with the city appended when given
func (r SearchRequest) QueryText() string {
	if r.CityContext != "" {
		return r.Input + ", " + r.CityContext
	}
	return r.Input
}

// RegionCodes returns the single-element lower-cased region restriction, or nil
func (r SearchRequest) RegionCodes() []string {
	if r.RegionCode == "" {
		return nil
	}
	return []string{strings.ToLower(r.RegionCode)}
}

// AutocompleteRequest is the body posted to places:autocomplete
type AutocompleteRequest struct {
	Input                string   `json:"input"`
	IncludedRegionCodes  []string `json:"includedRegionCodes,omitempty"`
	IncludedPrimaryTypes []string `json:"includedPrimaryTypes,omitempty"`
}

// BuildAutocompleteRequest shapes a callable search request into the upstream body
func BuildAutocompleteRequest(r SearchRequest) AutocompleteRequest {
	return AutocompleteRequest{
		Input:                r.QueryText(),
		IncludedRegionCodes:  r.RegionCodes(),
		IncludedPrimaryTypes: PrimaryTypesFor(r.LocationType),
	}
}

// FormattableText is the {text} wrapper used throughout the Places API
type FormattableText struct {
	Text string `json:"text"`
}

// StructuredFormat splits a prediction into main and secondary text
type StructuredFormat struct {
	MainText      *FormattableText `json:"mainText,omitempty"`
	SecondaryText *FormattableText `json:"secondaryText,omitempty"`
}

// PlacePrediction is a single place suggestion from autocomplete
type PlacePrediction struct {
	Place            string            `json:"place,omitempty"`
	PlaceID          string            `json:"placeId"`
	Text             *FormattableText  `json:"text,omitempty"`
	StructuredFormat *StructuredFormat `json:"structuredFormat,omitempty"`
	Types            []string          `json:"types,omitempty"`
}

// Suggestion wraps a prediction; query predictions are ignored
type Suggestion struct {
	PlacePrediction *PlacePrediction `json:"placePrediction,omitempty"`
}

// AutocompleteResponse is the places:autocomplete response body
type AutocompleteResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// LatLng is a coordinate pair as returned by the Places API
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is the subset of a place detail record this service reads
type Place struct {
	ID          string           `json:"id,omitempty"`
	Location    *LatLng          `json:"location,omitempty"`
	DisplayName *FormattableText `json:"displayName,omitempty"`
}

// SearchResultItem is one suggestion returned to the caller.
// Lat and Lng are either both set or both nil.
type SearchResultItem struct {
	PlaceID       string   `json:"placeId"`
	Description   string   `json:"description"`
	MainText      string   `json:"mainText"`
	SecondaryText string   `json:"secondaryText"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	Enriched      bool     `json:"enriched"`
}

// NewSearchResultItem copies the display fields of a suggestion with no coordinates
func NewSearchResultItem(s Suggestion) SearchResultItem {
	item := SearchResultItem{}
	p := s.PlacePrediction
	if p == nil {
		return item
	}
	item.PlaceID = p.PlaceID
	if p.Text != nil {
		item.Description = p.Text.Text
	}
	if p.StructuredFormat != nil {
		if p.StructuredFormat.MainText != nil {
			item.MainText = p.StructuredFormat.MainText.Text
		}
		if p.StructuredFormat.SecondaryText != nil {
			item.SecondaryText = p.StructuredFormat.SecondaryText.Text
		}
	}
	return item
}

// SetCoordinates attaches both coordinates at once
func (i *SearchResultItem) SetCoordinates(loc LatLng) {
	lat, lng := loc.Latitude, loc.Longitude
	i.Lat = &lat
	i.Lng = &lng
	i.Enriched = true
}

// SearchResponse is the result of the places autocomplete callable
type SearchResponse struct {
	Suggestions []SearchResultItem `json:"suggestions"`
}

// PlaceDetailRequest is the payload of the place details callable
type PlaceDetailRequest struct {
	PlaceID string `json:"placeId"`
}

// PlaceDetailResult is the result of the place details callable
type PlaceDetailResult struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name"`
}
