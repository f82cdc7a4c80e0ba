// Package docs embeds the OpenAPI document served by the Swagger UI.
package docs

import _ "embed"

// SwaggerJSON is the OpenAPI 2.0 description of the HTTP API.
//
//go:embed swagger.json
var SwaggerJSON []byte
