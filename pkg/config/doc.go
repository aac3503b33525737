// Package config loads application configuration from USERDECK_* environment
// variables, with an optional YAML file overlay (USERDECK_CONFIG_FILE), and
// validates the result before the server starts.
package config
