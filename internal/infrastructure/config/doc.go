// Package config handles loading and validating the HmIP mirror configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The cloud tokens (auth token, client auth token) should be set via
//     HMIP_AUTH_TOKEN and HMIP_CLIENT_AUTH_TOKEN rather than the file
//   - The config file should have restricted permissions (0600)
//
// The bootstrap fields under "cloud" are produced by the pairing flow,
// which lives outside this module. Config only carries them.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Cloud.RestURL)
package config
