// Package config handles loading and validating habsync configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with HABSYNC_* environment variables
//   - Validation of required fields, reported all at once
//   - Default value handling
//
// Security Considerations:
//   - The openHAB token, MQTT password and JWT secret should be set via
//     environment variables rather than committed to the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.OpenHAB.BaseURL)
package config
