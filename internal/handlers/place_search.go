package handlers

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"blood-donation-functions/internal/callable"
	"blood-donation-functions/internal/logging"
	"blood-donation-functions/internal/models"
	"blood-donation-functions/internal/services"
)

const invalidInputMessage = "The function must be called with a valid input string."

// PlaceSearchHandler proxies autocomplete and attaches coordinates to each suggestion
type PlaceSearchHandler struct {
	places      PlacesAPI
	credentials CredentialSource
}

// NewPlaceSearchHandler creates a search handler
func NewPlaceSearchHandler(places PlacesAPI, credentials CredentialSource) *PlaceSearchHandler {
	return &PlaceSearchHandler{
		places:      places,
		credentials: credentials,
	}
}

// Handle is the callable entry point
func (h *PlaceSearchHandler) Handle(ctx context.Context, req callable.Request) (interface{}, error) {
	var search models.SearchRequest
	if err := callable.DecodeData(req.Data, &search, invalidInputMessage); err != nil {
		return nil, err
	}
	return h.Search(ctx, search)
}

// Search runs one autocomplete call and one details lookup per suggestion.
// A suggestion whose lookup fails is returned without coordinates.
func (h *PlaceSearchHandler) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	logger := logging.FromContext(ctx)

	if req.Input == "" {
		return nil, callable.InvalidArgument(invalidInputMessage)
	}

	apiKey, err := h.credentials.PlacesAPIKey(ctx)
	if err != nil {
		logger.Error("Places API key unavailable", zap.Error(err))
		return nil, callable.FailedPrecondition("Google Places API key is not configured.")
	}

	upstream := models.BuildAutocompleteRequest(req)
	logger.Info("Calling Places API",
		zap.String("location_type", req.LocationType),
		zap.String("input", upstream.Input),
		zap.String("region_code", req.RegionCode),
	)

	resp, err := h.places.Autocomplete(ctx, apiKey, upstream)
	if err != nil {
		return nil, placesError(err)
	}

	logger.Info("Places API returned suggestions", zap.Int("count", len(resp.Suggestions)))

	return &models.SearchResponse{
		Suggestions: h.enrich(ctx, apiKey, resp.Suggestions),
	}, nil
}

// enrichment is the outcome of one coordinate lookup: either a location or the reason there is none
type enrichment struct {
	location *models.LatLng
	reason   string
}

func (h *PlaceSearchHandler) enrich(ctx context.Context, apiKey string, suggestions []models.Suggestion) []models.SearchResultItem {
	logger := logging.FromContext(ctx)

	items := make([]models.SearchResultItem, len(suggestions))
	outcomes := make([]enrichment, len(suggestions))

	var wg sync.WaitGroup
	for i, suggestion := range suggestions {
		items[i] = models.NewSearchResultItem(suggestion)

		wg.Add(1)
		go func(index int, placeID string) {
			defer wg.Done()
			outcomes[index] = h.lookupLocation(ctx, apiKey, placeID)
		}(i, items[i].PlaceID)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		if outcome.location != nil {
			items[i].SetCoordinates(*outcome.location)
			continue
		}
		if items[i].PlaceID != "" {
			logger.Warn("Error fetching details for place",
				zap.String("place_id", items[i].PlaceID),
				zap.String("reason", outcome.reason),
			)
		}
	}

	return items
}

func (h *PlaceSearchHandler) lookupLocation(ctx context.Context, apiKey, placeID string) enrichment {
	if placeID == "" {
		return enrichment{reason: "suggestion has no place ID"}
	}

	place, err := h.places.GetPlace(ctx, apiKey, placeID, services.PlaceFieldLocation)
	if err != nil {
		return enrichment{reason: err.Error()}
	}
	if place.Location == nil {
		return enrichment{reason: "place has no location"}
	}

	loc := *place.Location
	return enrichment{location: &loc}
}

// placesError converts a failed required Places call into an INTERNAL error,
// preferring the message from a structured upstream error body
func placesError(err error) error {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return callable.Internal("Google Places API error: "+msg, err)
	}
	return callable.Internal(err.Error(), err)
}
