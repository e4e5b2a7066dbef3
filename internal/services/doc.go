// Package services builds the application's service graph from
// configuration.
//
// Build connects the model gateway, pipeline, output writer, secret
// redactor and integration store, plus NATS when enabled. The returned
// Registry is shared by the HTTP daemon, the MCP server and the CLI.
package services
