// Package render expands {{ name }} template references in message text
// against a variables object, and derives a JSON-Schema describing the
// variables a prompt requires from those same references.
package render
