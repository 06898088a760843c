package service

import (
	"context"
	"net/url"
	"strings"
)

// enrichmentSource is the display name stamped on enrichment results.
const enrichmentSource = "OpenCorporates API"

// Default provider confidences for the two enrichment lookups. A
// registration-number match is more certain than a free-text name search.
const (
	companyConfidence      = 85
	registrationConfidence = 90
)

// Enrichment looks up company data through the OpenCorporates search API.
type Enrichment struct {
	base
}

// NewEnrichment creates the enrichment service.
func NewEnrichment(deps Dependencies) *Enrichment {
	healthQuery := url.Values{}
	healthQuery.Set("q", "test")
	healthQuery.Set("api_token", deps.Client.APIKey())

	return &Enrichment{
		base: newBase("enrichment", enrichmentSource, "/v0.4/companies/search", healthQuery, deps),
	}
}

// EnrichCompany enriches a company by free-text name.
func (e *Enrichment) EnrichCompany(ctx context.Context, companyName string) *CallResult {
	e.logger.Info("Enriching company data", "company", companyName)

	if strings.TrimSpace(companyName) == "" {
		return errorResultNow(companyName, enrichmentSource, "company name cannot be empty")
	}

	return e.enrich(ctx, "company_"+companyName, companyName, "company", companyConfidence)
}

// EnrichByRegistrationID enriches a company by its jurisdiction-specific
// registration identifier.
func (e *Enrichment) EnrichByRegistrationID(ctx context.Context, registrationID string) *CallResult {
	e.logger.Info("Enriching by registration id", "registration_id", registrationID)

	if strings.TrimSpace(registrationID) == "" {
		return errorResultNow(registrationID, enrichmentSource, "registration id cannot be empty")
	}

	return e.enrich(ctx, "registration_"+registrationID, registrationID, "registration", registrationConfidence)
}

func (e *Enrichment) enrich(ctx context.Context, cacheKey, query, kind string, confidence int) *CallResult {
	params := url.Values{}
	params.Set("q", query)
	params.Set("api_token", e.client.APIKey())

	return e.call(ctx, cacheKey, "/v0.4/companies/search", params, query,
		func(body map[string]any) (*CallResult, error) {
			return parseEnrichmentResponse(body, kind, confidence)
		})
}

// parseEnrichmentResponse maps the OpenCorporates shape
// (results[0].company.*) into the uniform payload mapping.
func parseEnrichmentResponse(body map[string]any, kind string, confidence int) (*CallResult, error) {
	first, err := firstResult(body)
	if err != nil {
		return nil, err
	}

	company, ok := first["company"].(map[string]any)
	if !ok {
		// An empty search is a legitimate no-match, not a parse failure
		return &CallResult{
			Status:  StatusNotFound,
			Payload: map[string]any{"enrichment_type": kind},
		}, nil
	}

	payload := map[string]any{
		"enrichment_type":    kind,
		"name":               stringField(company, "name"),
		"company_number":     stringField(company, "company_number"),
		"jurisdiction_code":  stringField(company, "jurisdiction_code"),
		"incorporation_date": stringField(company, "incorporation_date"),
		"dissolution_date":   stringField(company, "dissolution_date"),
		"company_type":       stringField(company, "company_type"),
		"status":             stringField(company, "status"),
	}

	return &CallResult{
		Status:     StatusSuccess,
		Payload:    payload,
		Confidence: confidence,
	}, nil
}
