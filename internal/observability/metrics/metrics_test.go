package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason", "created"),
		attribute.String("client_id", "456"),
		attribute.String("invoice_type", "batch"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
	if attrs[0].Key != "invoice_type" && attrs[1].Key != "invoice_type" {
		t.Fatalf("expected invoice_type to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionTransition(context.Background(), "draft", "submitted")
	m.RecordBatchOutcome(context.Background(), "created")

	noop := NewNoop()
	if noop == nil {
		t.Fatalf("expected noop metrics")
	}
	noop.RecordPaymentSend(context.Background(), "noop", "sent")
}
