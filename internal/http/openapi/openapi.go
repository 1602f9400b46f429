// Package openapi embeds the OpenAPI document served at /openapi.yaml.
package openapi

import _ "embed"

// YAML is the OpenAPI 3 description of the /v1 API.
//
//go:embed openapi.yaml
var YAML []byte
