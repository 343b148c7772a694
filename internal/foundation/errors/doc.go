// Package errors provides the classified error primitives used across the exporter.
//
// A ClassifiedError carries a category (registry, decode, transport, ...), a severity and a
// retry strategy, plus free-form context. Errors are created through the fluent builder:
//
//	err := errors.DecodeError("unknown routing key").
//		WithContext("routing_key", key).
//		WithCause(parseErr).
//		Build()
//
// The HTTP and CLI adapters map categories onto response status codes and exit codes.
package errors
