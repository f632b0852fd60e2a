// Package config loads the formrt command configuration from a TOML file.
package config
