// Package config handles configuration loading, parsing, and validation
// from defaults, an optional mailroom.yaml and MAILROOM_ environment
// variables. Environment variables take precedence over the file.
package config
