package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	verrors "github.com/bondalen/vuege/errors"
)

// geocodingSource is the display name stamped on geocoding results.
const geocodingSource = "OpenCage Data API"

// Geocoding resolves addresses to coordinates and back through the
// OpenCage Data API.
type Geocoding struct {
	base
	limit int
}

// NewGeocoding creates the geocoding service.
func NewGeocoding(deps Dependencies) *Geocoding {
	healthQuery := url.Values{}
	healthQuery.Set("q", "test")
	healthQuery.Set("key", deps.Client.APIKey())

	return &Geocoding{
		base:  newBase("geocoding", geocodingSource, "/geocode/v1/json", healthQuery, deps),
		limit: 1,
	}
}

// Geocode resolves a free-text address into coordinates and address
// components.
func (g *Geocoding) Geocode(ctx context.Context, address string) *CallResult {
	g.logger.Info("Geocoding address", "address", address)

	if address == "" {
		return errorResultNow(address, geocodingSource, "address cannot be empty")
	}

	query := g.baseQuery()
	query.Set("q", address)

	return g.call(ctx, "geocode_"+address, "/geocode/v1/json", query, address, parseGeocodingResponse)
}

// ReverseGeocode resolves coordinates into the nearest address.
// Coordinates outside [-90,90]/[-180,180] are a caller input error: the
// call fails immediately without reaching the provider or the retry
// policy.
func (g *Geocoding) ReverseGeocode(ctx context.Context, latitude, longitude float64) *CallResult {
	g.logger.Info("Reverse geocoding", "latitude", latitude, "longitude", longitude)

	input := formatCoordinates(latitude, longitude)
	if err := validateCoordinates(latitude, longitude); err != nil {
		g.logger.Warn("Invalid coordinates", "latitude", latitude, "longitude", longitude)
		return errorResultNow(input, geocodingSource, err.Error())
	}

	query := g.baseQuery()
	query.Set("q", input)

	cacheKey := fmt.Sprintf("reverse_%s_%s",
		strconv.FormatFloat(latitude, 'f', -1, 64),
		strconv.FormatFloat(longitude, 'f', -1, 64))

	return g.call(ctx, cacheKey, "/geocode/v1/json", query, input, parseGeocodingResponse)
}

func (g *Geocoding) baseQuery() url.Values {
	query := url.Values{}
	query.Set("key", g.client.APIKey())
	query.Set("limit", strconv.Itoa(g.limit))
	query.Set("no_annotations", "1")
	return query
}

func formatCoordinates(latitude, longitude float64) string {
	return strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
}

func validateCoordinates(latitude, longitude float64) error {
	if latitude < -90 || latitude > 90 {
		return verrors.WrapInvalid(verrors.ErrInvalidCoordinate, "geocoding", "ReverseGeocode",
			fmt.Sprintf("latitude %v out of [-90,90]", latitude))
	}
	if longitude < -180 || longitude > 180 {
		return verrors.WrapInvalid(verrors.ErrInvalidCoordinate, "geocoding", "ReverseGeocode",
			fmt.Sprintf("longitude %v out of [-180,180]", longitude))
	}
	return nil
}

// parseGeocodingResponse maps the OpenCage response shape into the uniform
// result: coordinates from results[0].geometry, the formatted address, and
// the address components.
func parseGeocodingResponse(body map[string]any) (*CallResult, error) {
	first, err := firstResult(body)
	if err != nil {
		return nil, err
	}

	geometry, ok := first["geometry"].(map[string]any)
	if !ok {
		return nil, verrors.WrapTransient(verrors.ErrParsingFailed, "geocoding", "parse", "missing geometry")
	}
	lat, latOK := floatField(geometry, "lat")
	lng, lngOK := floatField(geometry, "lng")
	if !latOK || !lngOK {
		return nil, verrors.WrapTransient(verrors.ErrParsingFailed, "geocoding", "parse", "missing coordinates")
	}

	payload := map[string]any{
		"latitude":          lat,
		"longitude":         lng,
		"formatted_address": stringField(first, "formatted"),
	}

	if components, ok := first["components"].(map[string]any); ok {
		payload["country"] = stringField(components, "country")
		payload["region"] = stringField(components, "state")
		payload["city"] = stringField(components, "city")
		payload["postal_code"] = stringField(components, "postcode")
		payload["street"] = stringField(components, "road")
		payload["house_number"] = stringField(components, "house_number")
	}

	result := &CallResult{
		Status:  StatusSuccess,
		Payload: payload,
	}
	if confidence, ok := intField(first, "confidence"); ok {
		result.Confidence = confidence
	}
	return result, nil
}
