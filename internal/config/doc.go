// Package config loads the assistant's YAML configuration, including the
// voice and language catalogs and the system prompt template.
package config
