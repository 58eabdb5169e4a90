// Package assistants provides a model-driven orchestrator that binds the tools of a registry to a language model.
package assistants
