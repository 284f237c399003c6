// Package spec serves the embedded OpenAPI contract.
package spec

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
