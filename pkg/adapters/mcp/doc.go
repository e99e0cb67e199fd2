// Package mcp exposes a quire engine as a Model Context Protocol server, so an
// assistant can inspect the catalog, plan goals and drive project sessions.
package mcp
