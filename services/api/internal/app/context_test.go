package app

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"bizassist/pkg/domain"
	"bizassist/pkg/store"
)

// sectionLines returns the body lines under the section whose header starts with name.
func sectionLines(t *testing.T, text, name string) []string {
	t.Helper()
	for _, s := range parseSections(text) {
		if s.name() == name {
			return s.Lines
		}
	}
	t.Fatalf("section %s not found in:\n%s", name, text)
	return nil
}

func TestContextNeedsAttentionScenario(t *testing.T) {
	a := newTestApp(t, Config{Store: seededStore()})
	bc := a.assembleContext(context.Background(), "t1", "what needs attention")
	if bc.Unavailable {
		t.Fatalf("context unexpectedly unavailable")
	}

	overdue := sectionLines(t, bc.Text, sectionOverdueInvoices)
	if len(overdue) != 1 || !strings.Contains(overdue[0], "INV-7") || !strings.Contains(overdue[0], "$5,000.00") {
		t.Fatalf("overdue section = %q", overdue)
	}
	tasks := sectionLines(t, bc.Text, sectionPendingTasks)
	if len(tasks) != 1 || tasks[0] != "None - You have no pending tasks." {
		t.Fatalf("pending tasks section = %q", tasks)
	}
	for name, sentinel := range map[string]string{
		sectionActiveDeals:     noActiveDeals,
		sectionPendingInvoices: noPendingInvoices,
		sectionProducts:        noProductSales,
	} {
		if lines := sectionLines(t, bc.Text, name); len(lines) != 1 || lines[0] != sentinel {
			t.Fatalf("%s section = %q", name, lines)
		}
	}
	if !strings.Contains(bc.Text, "OVERDUE INVOICES (1, total $5,000.00)") {
		t.Fatalf("overdue header missing count and total:\n%s", bc.Text)
	}
}

func TestContextSectionOrder(t *testing.T) {
	s := seededStore()
	c := s.PutContact(domain.Contact{TenantID: "t1", Name: "Jane Doe", Company: "Globex"})
	s.PutInteraction(domain.Interaction{TenantID: "t1", ContactID: c.ID, Type: "CALL", Subject: "Intro", OccurredAt: testNow.Add(-time.Hour)})
	s.PutProduct(domain.Product{TenantID: "t1", Name: "Sourdough", Price: 8.5, Stock: 20, UnitsSold: 1500})
	a := newTestApp(t, Config{Store: s})

	bc := a.assembleContext(context.Background(), "t1", "follow up with Jane Doe")
	var got []string
	for _, sec := range parseSections(bc.Text) {
		got = append(got, sec.name())
	}
	want := []string{sectionProfile, sectionProducts, sectionContact, sectionLatestDeal, sectionInteractions,
		sectionOverdueInvoices, sectionPendingTasks, sectionActiveDeals, sectionPendingInvoices}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sections = %v, want %v", got, want)
	}
	if !strings.Contains(bc.Text, "Sourdough: 1,500 sold at $8.50") {
		t.Fatalf("product line not formatted:\n%s", bc.Text)
	}
}

func TestContextNeverMatchesOtherTenantContacts(t *testing.T) {
	s := seededStore()
	s.PutTenant(domain.Tenant{ID: "t2", Name: "Empty Co"})
	s.PutContact(domain.Contact{TenantID: "t1", Name: "Jane Doe", Company: "Globex"})
	a := newTestApp(t, Config{Store: s})

	bc := a.assembleContext(context.Background(), "t2", "Write a proposal for Globex")
	if bc.Contact != nil || strings.Contains(bc.Text, sectionContact) {
		t.Fatalf("tenant t2 matched a t1 contact:\n%s", bc.Text)
	}
	if strings.Contains(bc.Text, "INV-7") {
		t.Fatalf("tenant t2 saw t1 invoices")
	}
}

func TestContextUnavailableOnQueryError(t *testing.T) {
	a := newTestApp(t, Config{Store: brokenStore{Store: store.NewMemoryStore()}})
	bc := a.assembleContext(context.Background(), "t1", "hello")
	if !bc.Unavailable || bc.Text != contextUnavailable {
		t.Fatalf("expected placeholder, got %+v", bc)
	}
}

func TestExtractNames(t *testing.T) {
	tests := []struct {
		message string
		want    []string
	}{
		{"what needs attention", nil},
		{"Write a proposal for Acme Corp", []string{"Acme Corp"}},
		{"Draft a quote for Smith & Sons.", []string{"Smith & Sons"}},
		{"Globex's invoice is late", []string{"Globex"}},
		{"call Jane Doe about the renewal", []string{"Jane Doe"}},
		{"Show me tasks for Today", nil},
	}
	for _, tc := range tests {
		t.Run(tc.message, func(t *testing.T) {
			if got := extractNames(tc.message); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("extractNames = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMoneyFormat(t *testing.T) {
	tests := []struct {
		currency string
		amount   float64
		want     string
	}{
		{"", 5000, "$5,000.00"},
		{"EUR", 1234567.5, "€1,234,567.50"},
		{"GBP", -20, "-£20.00"},
		{"CHF", 10, "CHF 10.00"},
		{"usd", 0.5, "$0.50"},
		{"ZZZ1", 10, "ZZZ1 10.00"},
	}
	for _, tc := range tests {
		if got := newMoney(tc.currency).format(tc.amount); got != tc.want {
			t.Fatalf("format(%s, %v) = %q, want %q", tc.currency, tc.amount, got, tc.want)
		}
	}
	if got := newMoney("JPY").format(1500); !strings.HasSuffix(got, "1,500") {
		t.Fatalf("yen amounts have no minor units, got %q", got)
	}
}
