// Package config loads process configuration for the goguard command from the
// environment. Variables are prefixed GOGUARD_ and may be supplied through a .env file.
package config
