// Package config loads service configuration from DEALDESK_* environment
// variables with validated defaults.
package config
