package store

import (
	"context"
	"testing"
	"time"

	"bizassist/pkg/domain"
)

func TestMemoryStoreTenantIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutContact(domain.Contact{TenantID: "t1", Name: "Alice Smith", Company: "Acme"})

	if _, ok, _ := s.FindContactByName(ctx, "t2", "Acme"); ok {
		t.Fatalf("tenant t2 must not see t1 contacts")
	}
	c, ok, err := s.FindContactByName(ctx, "t1", "acme")
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if c.Name != "Alice Smith" {
		t.Fatalf("unexpected contact %+v", c)
	}
}

func TestMemoryStorePendingTasksOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(48 * time.Hour)
	s.PutTask(domain.Task{TenantID: "t1", Title: "low", Priority: domain.PriorityLow, Status: domain.TaskPending, DueDate: &soon})
	s.PutTask(domain.Task{TenantID: "t1", Title: "high-undated", Priority: domain.PriorityHigh, Status: domain.TaskPending})
	s.PutTask(domain.Task{TenantID: "t1", Title: "high-later", Priority: domain.PriorityHigh, Status: domain.TaskInProgress, DueDate: &later})
	s.PutTask(domain.Task{TenantID: "t1", Title: "urgent", Priority: domain.PriorityUrgent, Status: domain.TaskPending})
	s.PutTask(domain.Task{TenantID: "t1", Title: "done", Priority: domain.PriorityUrgent, Status: domain.TaskDone})

	tasks, err := s.PendingTasks(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("pending tasks: %v", err)
	}
	want := []string{"urgent", "high-later", "high-undated", "low"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(tasks), len(want))
	}
	for i, title := range want {
		if tasks[i].Title != title {
			t.Fatalf("task[%d] = %q, want %q", i, tasks[i].Title, title)
		}
	}
}

func TestMemoryStoreInvoicesCarryContactName(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	c := s.PutContact(domain.Contact{TenantID: "t1", Name: "Bob"})
	s.PutInvoice(domain.Invoice{TenantID: "t1", ContactID: c.ID, Number: "INV-1", Amount: 5000, Status: domain.InvoiceSent, DueDate: now.Add(-24 * time.Hour)})
	s.PutInvoice(domain.Invoice{TenantID: "t1", Number: "INV-2", Amount: 100, Status: domain.InvoiceSent, DueDate: now.Add(24 * time.Hour)})

	overdue, _ := s.OverdueInvoices(ctx, "t1", now, 10)
	if len(overdue) != 1 || overdue[0].ContactName != "Bob" {
		t.Fatalf("unexpected overdue invoices %+v", overdue)
	}
	pending, _ := s.PendingInvoices(ctx, "t1", now, 10)
	if len(pending) != 1 || pending[0].Number != "INV-2" {
		t.Fatalf("unexpected pending invoices %+v", pending)
	}
}

func TestMemoryStoreUpsertCallByVendorID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first, err := s.UpsertCallByVendorID(ctx, domain.Call{TenantID: "t1", VendorCallID: "CA1", Status: domain.CallRinging})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertCallByVendorID(ctx, domain.Call{TenantID: "t1", VendorCallID: "CA1", Status: domain.CallCompleted, DurationSeconds: 42})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID || second.Status != domain.CallCompleted || second.DurationSeconds != 42 {
		t.Fatalf("expected one updated record, got %+v then %+v", first, second)
	}
	calls, total, _ := s.ListCalls(ctx, "t1", 1, 20)
	if total != 1 || len(calls) != 1 {
		t.Fatalf("expected one call, got %d", total)
	}
	if err := s.AppendTranscript(ctx, "t1", "CA1", domain.TranscriptSegment{Speaker: "caller", Text: "hours?"}); err != nil {
		t.Fatalf("append transcript: %v", err)
	}
	got, _, _ := s.GetCall(ctx, "t1", first.ID)
	if len(got.Transcript) != 1 {
		t.Fatalf("expected transcript segment, got %+v", got.Transcript)
	}
	if err := s.AppendTranscript(ctx, "t2", "CA1"); err != nil {
		t.Fatalf("empty append should be a no-op lookup: %v", err)
	}
}

func TestMemoryStoreMonthlyUsage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t1", Service: "groq", PromptTokens: 10, CompletionTokens: 5, CreatedAt: from.Add(time.Hour)})
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t1", Service: "groq", PromptTokens: 1, CompletionTokens: 1, CreatedAt: from.Add(2 * time.Hour)})
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t1", Service: "gemini", CreatedAt: from.Add(time.Hour)})
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t1", Service: "groq", CreatedAt: to.Add(time.Hour)})
	_ = s.AppendUsageLog(ctx, domain.UsageLog{TenantID: "t2", Service: "groq", CreatedAt: from.Add(time.Hour)})

	usage, err := s.MonthlyUsage(ctx, "t1", from, to)
	if err != nil {
		t.Fatalf("monthly usage: %v", err)
	}
	if len(usage) != 2 || usage[0].Service != "gemini" || usage[1].Service != "groq" {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if usage[1].Requests != 2 || usage[1].PromptTokens != 11 || usage[1].CompletionTokens != 6 {
		t.Fatalf("unexpected groq aggregate %+v", usage[1])
	}
}

func TestMemoryStorePublishedPages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	site, err := s.CreateWebsite(ctx, domain.Website{TenantID: "t1", Name: "Shop", Subdomain: "shop"})
	if err != nil {
		t.Fatalf("create website: %v", err)
	}
	if _, err := s.CreateWebsite(ctx, domain.Website{TenantID: "t2", Name: "Other", Subdomain: "shop"}); err != ErrSubdomainTaken {
		t.Fatalf("expected ErrSubdomainTaken, got %v", err)
	}
	if _, err := s.UpsertPage(ctx, domain.Page{WebsiteID: site.ID, TenantID: "t1", Slug: "home", HTML: "<p>v1</p>"}); err != nil {
		t.Fatalf("upsert page: %v", err)
	}
	if _, ok, _ := s.GetPublishedPage(ctx, "shop", "home"); ok {
		t.Fatalf("unpublished site must not serve pages")
	}
	if err := s.SetWebsitePublished(ctx, "t1", site.ID, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	updated, _ := s.UpsertPage(ctx, domain.Page{WebsiteID: site.ID, TenantID: "t1", Slug: "home", HTML: "<p>v2</p>"})
	page, ok, _ := s.GetPublishedPage(ctx, "shop", "home")
	if !ok || page.HTML != "<p>v2</p>" || page.ID != updated.ID {
		t.Fatalf("unexpected page %+v", page)
	}
	if err := s.SetWebsitePublished(ctx, "t2", site.ID, false); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("escapeLike = %q", got)
	}
}

func TestUpsertCallRejectsForeignTenant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.UpsertCallByVendorID(ctx, domain.Call{TenantID: "t1", VendorCallID: "CA9", Status: domain.CallRinging}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertCallByVendorID(ctx, domain.Call{TenantID: "t2", VendorCallID: "CA9", Status: domain.CallCompleted}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}
	calls, _, _ := s.ListCalls(ctx, "t1", 1, 20)
	if len(calls) != 1 || calls[0].Status != domain.CallRinging {
		t.Fatalf("t1 call must be untouched, got %+v", calls)
	}
}
