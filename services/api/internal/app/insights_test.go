package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"bizassist/pkg/domain"
)

func TestInsightsFromAggregates(t *testing.T) {
	s := seededStore()
	s.PutContact(domain.Contact{TenantID: "t1", Name: "Jane", ChurnRisk: true})
	s.PutProduct(domain.Product{TenantID: "t1", Name: "Rye", Stock: 2, UnitsSold: 10})
	s.PutDeal(domain.Deal{TenantID: "t1", Title: "Cafe supply", Value: 2500, Stage: domain.StageNegotiation})
	paid := testNow.Add(-24 * time.Hour)
	s.PutInvoice(domain.Invoice{TenantID: "t1", Number: "INV-1", Amount: 300, Status: domain.InvoicePaid, DueDate: paid, PaidAt: &paid})
	a := newTestApp(t, Config{Store: s})

	out, err := a.Insights(context.Background(), identity("t1"))
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if out.Metrics.OverdueInvoices != 1 || out.Metrics.ActiveDeals != 1 || out.Metrics.ChurnRiskContacts != 1 || out.Metrics.LowStockProducts != 1 {
		t.Fatalf("unexpected metrics %+v", out.Metrics)
	}
	types := map[string]bool{}
	for _, in := range out.Insights {
		types[in.Type] = true
	}
	for _, want := range []string{"invoicing", "sales", "crm", "inventory"} {
		if !types[want] {
			t.Fatalf("missing %s insight in %+v", want, out.Insights)
		}
	}
	if !out.GeneratedAt.Equal(testNow) {
		t.Fatalf("generatedAt = %v", out.GeneratedAt)
	}
}

func TestInsightsEmptyTenant(t *testing.T) {
	a := newTestApp(t, Config{})
	out, err := a.Insights(context.Background(), identity("nobody"))
	if err != nil || len(out.Insights) != 1 || out.Insights[0].Type != "general" || out.Metrics.Currency != "USD" {
		t.Fatalf("unexpected output %+v err=%v", out, err)
	}
}

func TestUsageAggregatesMonth(t *testing.T) {
	s := seededStore()
	ctx := context.Background()
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t1", Service: "groq", PromptTokens: 10, CompletionTokens: 4, CreatedAt: testNow})
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t1", Service: "gateway", CreatedAt: testNow})
	a := newTestApp(t, Config{Store: s, Gateway: &fakeGateway{}})

	out, err := a.Usage(ctx, identity("t1"), "")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if out.Month != "2026-10" || out.Total.Requests != 2 || out.Total.PromptTokens != 10 || out.Gateway == nil {
		t.Fatalf("unexpected usage %+v", out)
	}
	if out, _ := a.Usage(ctx, identity("t1"), "2026-09"); len(out.Usage) != 0 {
		t.Fatalf("september should be empty, got %+v", out.Usage)
	}
	var verr *ValidationError
	if _, err := a.Usage(ctx, identity("t1"), "Sept"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
