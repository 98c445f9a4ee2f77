// Package data provides the embedded default seed catalog.
package data

import _ "embed"

// Catalog is the default seed document: products, stock, pricing rules and
// exchange rates.
//
//go:embed catalog.json
var Catalog []byte
