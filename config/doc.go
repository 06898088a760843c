// Package config loads and validates the gateway's configuration.
//
// Configuration comes from a YAML file, with environment variables
// overriding the sensitive and deployment-specific fields. Secrets such
// as provider API keys should be supplied via environment in production,
// not committed to the config file.
//
// # Environment Overrides
//
// The loader recognizes these variables:
//
//	VUEGE_OPENCAGE_API_KEY        providers.opencage.api_key
//	VUEGE_OPENCAGE_BASE_URL       providers.opencage.base_url
//	VUEGE_ABSTRACT_API_KEY        providers.abstract.api_key
//	VUEGE_ABSTRACT_BASE_URL       providers.abstract.base_url
//	VUEGE_OPENCORPORATES_API_KEY  providers.opencorporates.api_key
//	VUEGE_OPENCORPORATES_BASE_URL providers.opencorporates.base_url
//	VUEGE_SERVER_PORT             server.port
//
// # Basic Usage
//
//	cfg, err := config.Load("configs/vuege.yaml")
//	if err != nil {
//	    return err
//	}
package config
