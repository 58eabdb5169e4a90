// Package llms provides provider-neutral types for talking to language models
// that support tool calling.
//
// Provider adapters live in the subpackages and translate Message,
// CallOptions and ContentResponse to the vendor SDK shapes.
package llms
