// Package config provides configuration management for the Lineage admission
// webhook.
//
// Configuration is read from a YAML file, decoded on top of defaults, and
// then overridden by environment variables before validation.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("lineage.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("lineage.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention LINEAGE_SECTION_FIELD.
// For example:
//
//   - LINEAGE_WEBHOOK_LISTEN_ADDRESS overrides webhook.listen_address
//   - LINEAGE_EXPORTER_ENDPOINT overrides exporter.endpoint
//   - LINEAGE_ADMISSION_TRACED_KINDS overrides admission.traced_kinds (comma separated)
//   - LINEAGE_EXPORTER_HEADERS overrides exporter.headers ("k1=v1,k2=v2")
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("lineage.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// A Watcher reloads the singleton when the file changes and Subscribe
// registers callbacks that receive each new configuration.
package config
