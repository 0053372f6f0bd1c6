// Package integration provides integration tests for the ToolHive gateway.
// These tests run the complete gateway against a watched manifest directory and
// validate hot reload, catalog sync, access enforcement and change events end to end.
package integration
