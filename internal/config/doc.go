// Package config handles configuration loading for autoclaimer.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from AUTOCLAIMER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/autoclaimer/config.yaml
//  3. ~/.config/autoclaimer/config.yaml
//
// Files ending in .toml are read as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables, which keeps tokens out of the
// file:
//
//	sources:
//	  discord:
//	    token: "${DISCORD_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Durations use time.ParseDuration syntax:
//
//	server:
//	  reconnect_delay: "5s"
//	dedupe:
//	  window: "5m"    # "0s" never expires
//
// # Defaults
//
// Every field has a default except the sources, of which at least one must
// be enabled. See Default.
package config
