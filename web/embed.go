package web

import (
	_ "embed"
)

//go:embed playground.html
var playground []byte

// Playground returns the page served on GET / for exploring the GraphQL endpoint.
func Playground() []byte {
	return playground
}
