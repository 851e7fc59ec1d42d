// Package config loads retrofix configuration from a YAML file with
// environment overrides and builds the process logger.
package config
