// Package config provides the embedded default configuration for scanblock.
package config

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration in YAML format.
// 'scanblock config create' writes it as the starting configuration file.
//
//go:embed config.default.yaml
var DefaultConfigYAML []byte
