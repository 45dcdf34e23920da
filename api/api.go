// Package api хранит встроенную OpenAPI-спецификацию сервиса
// (отдаётся роутером на /swagger/openapi.json).
package api

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte
