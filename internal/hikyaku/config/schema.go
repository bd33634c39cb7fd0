package config

import _ "embed"

// schemaJSON is the JSON schema a YAML config file must satisfy.
//
//go:embed config.schema.json
var schemaJSON []byte
