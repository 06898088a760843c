package service

import (
	"context"
	"net/url"
	"strings"
)

// validationSource is the display name stamped on validation results.
const validationSource = "Abstract API"

// Validation checks emails, phone numbers, and postal addresses through
// the Abstract API validation endpoints.
type Validation struct {
	base
}

// NewValidation creates the validation service.
func NewValidation(deps Dependencies) *Validation {
	healthQuery := url.Values{}
	healthQuery.Set("api_key", deps.Client.APIKey())
	healthQuery.Set("email", "test@test.com")

	return &Validation{
		base: newBase("validation", validationSource, "/v1/validation/email", healthQuery, deps),
	}
}

// ValidateEmail checks whether an email address is deliverable.
func (v *Validation) ValidateEmail(ctx context.Context, email string) *CallResult {
	v.logger.Info("Validating email", "email", email)

	if strings.TrimSpace(email) == "" {
		return errorResultNow(email, validationSource, "email cannot be empty")
	}

	return v.validate(ctx, "email", email, "email")
}

// ValidatePhone checks whether a phone number is valid.
func (v *Validation) ValidatePhone(ctx context.Context, phone string) *CallResult {
	v.logger.Info("Validating phone", "phone", phone)

	if strings.TrimSpace(phone) == "" {
		return errorResultNow(phone, validationSource, "phone cannot be empty")
	}

	return v.validate(ctx, "phone", phone, "phone")
}

// ValidateAddress checks whether a postal address is deliverable.
func (v *Validation) ValidateAddress(ctx context.Context, address string) *CallResult {
	v.logger.Info("Validating address", "address", address)

	if strings.TrimSpace(address) == "" {
		return errorResultNow(address, validationSource, "address cannot be empty")
	}

	return v.validate(ctx, "address", address, "address")
}

// validate runs the shared validation pipeline. kind selects the endpoint
// and paramName the query parameter carrying the value; the formatted
// field in the provider response differs per kind.
func (v *Validation) validate(ctx context.Context, kind, value, paramName string) *CallResult {
	query := url.Values{}
	query.Set("api_key", v.client.APIKey())
	query.Set(paramName, value)

	formattedKey := paramName
	if kind == "address" {
		formattedKey = "formatted_address"
	}

	return v.call(ctx, kind+"_"+value, "/v1/validation/"+kind, query, value,
		func(body map[string]any) (*CallResult, error) {
			return parseValidationResponse(body, kind, formattedKey)
		})
}

// parseValidationResponse maps the Abstract API shape (is_valid,
// confidence, formatted value) into the uniform result. A negative
// validation is a regular INVALID result, not an error.
func parseValidationResponse(body map[string]any, kind, formattedKey string) (*CallResult, error) {
	isValid := boolField(body, "is_valid")

	status := StatusInvalid
	if isValid {
		status = StatusSuccess
	}

	result := &CallResult{
		Status: status,
		Payload: map[string]any{
			"validation_type": kind,
			"is_valid":        isValid,
			"formatted":       stringField(body, formattedKey),
		},
	}
	if confidence, ok := intField(body, "confidence"); ok {
		result.Confidence = confidence
	}
	return result, nil
}
