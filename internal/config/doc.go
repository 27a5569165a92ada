// Package config loads, normalizes, and validates earthgazer configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a project .env file, and honours
// environment fallbacks such as EARTHGAZER_DATABASE_URL and
// GOOGLE_APPLICATION_CREDENTIALS.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
