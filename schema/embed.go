// Package schema embeds the GraphQL SDL describing the riverql surface.
//
// The document is served verbatim at /schema so clients can generate types
// against it. The server does not execute it; subscriptions are parsed by the
// internal query package.
package schema

import _ "embed"

// SDL is the schema document.
//
//go:embed schema.graphql
var SDL []byte
