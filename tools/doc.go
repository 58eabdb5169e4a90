// Package tools defines the typed tool contract: a named operation with a
// JSON-schema description of its arguments that a model-driven orchestrator
// can discover and invoke.
//
// A tool is registered once with New, its arguments are checked against the
// schema by Invoke before the operation runs, and every outcome is reported as
// a Result carrying either the JSON output or a classified Failure.
package tools
