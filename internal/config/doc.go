// Package config provides configuration loading and validation for the voice archive bot.
// It reads a YAML file, seeds secrets from an optional .env file, applies environment
// overrides and validates every section before the service starts.
package config
