// Package docs embeds the HTTP and event contracts of the ledger service.
package docs

import _ "embed"

// OpenAPI is the HTTP contract served under /api/v1
//
//go:embed openapi.yaml
var OpenAPI []byte

// AsyncAPI describes the CloudEvents published to Kafka
//
//go:embed asyncapi.yaml
var AsyncAPI []byte
