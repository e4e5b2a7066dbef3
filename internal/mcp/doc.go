// Package mcp exposes the story pipeline as Model Context Protocol tools.
//
// The server runs on the stdio transport and registers three tools:
// generate_user_stories, validate_output and integrate_story. Tool
// invocations are counted and timed through OpenTelemetry metrics.
package mcp
