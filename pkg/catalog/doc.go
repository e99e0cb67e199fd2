// Package catalog holds the ordered action registry, the handler registry and
// the YAML/JSON catalog loader.
package catalog
