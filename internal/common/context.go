package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyCustomer  contextKey = "customer"
	ContextKeyDocument  contextKey = "document_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithCustomer adds a customer code to the context
func WithCustomer(ctx context.Context, customer string) context.Context {
	return context.WithValue(ctx, ContextKeyCustomer, customer)
}

// CustomerFromContext extracts the customer code from context
func CustomerFromContext(ctx context.Context) string {
	if customer, ok := ctx.Value(ContextKeyCustomer).(string); ok {
		return customer
	}
	return ""
}

// WithDocumentID adds a document ID to the context
func WithDocumentID(ctx context.Context, docID string) context.Context {
	return context.WithValue(ctx, ContextKeyDocument, docID)
}

// DocumentIDFromContext extracts the document ID from context
func DocumentIDFromContext(ctx context.Context) string {
	if docID, ok := ctx.Value(ContextKeyDocument).(string); ok {
		return docID
	}
	return ""
}

// WithTimeout creates a context with the specified timeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}
