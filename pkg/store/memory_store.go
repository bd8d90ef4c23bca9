package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bizassist/pkg/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps all records in-process. It backs local development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	tenants      map[string]domain.Tenant
	contacts     []domain.Contact
	deals        []domain.Deal
	invoices     []domain.Invoice
	orders       []domain.Order
	products     []domain.Product
	tasks        []domain.Task
	interactions []domain.Interaction
	calls        []domain.Call
	faqs         []domain.FAQ
	logos        []domain.Logo
	websites     []domain.Website
	pages        []domain.Page
	integrations []domain.Integration
	usageLogs    []domain.UsageLog
	chatLogs     []domain.InteractionLog
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]domain.Tenant)}
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// PutTenant stores or replaces a tenant.
func (m *MemoryStore) PutTenant(t domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Currency == "" {
		t.Currency = "USD"
	}
	m.tenants[t.ID] = t
}

func (m *MemoryStore) PutContact(c domain.Contact) domain.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = newID(c.ID)
	m.contacts = append(m.contacts, c)
	return c
}

func (m *MemoryStore) PutDeal(d domain.Deal) domain.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = newID(d.ID)
	m.deals = append(m.deals, d)
	return d
}

func (m *MemoryStore) PutInvoice(inv domain.Invoice) domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = newID(inv.ID)
	m.invoices = append(m.invoices, inv)
	return inv
}

func (m *MemoryStore) PutOrder(o domain.Order) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = newID(o.ID)
	m.orders = append(m.orders, o)
	return o
}

func (m *MemoryStore) PutProduct(p domain.Product) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = newID(p.ID)
	m.products = append(m.products, p)
	return p
}

func (m *MemoryStore) PutTask(t domain.Task) domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = newID(t.ID)
	m.tasks = append(m.tasks, t)
	return t
}

func (m *MemoryStore) PutInteraction(i domain.Interaction) domain.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	i.ID = newID(i.ID)
	m.interactions = append(m.interactions, i)
	return i
}

// InteractionLogs returns a copy of the recorded chat logs of a tenant.
func (m *MemoryStore) InteractionLogs(tenantID string) []domain.InteractionLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.chatLogs, func(l domain.InteractionLog) bool { return l.TenantID == tenantID })
}

// UsageLogs returns a copy of the recorded usage logs of a tenant.
func (m *MemoryStore) UsageLogs(tenantID string) []domain.UsageLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.usageLogs, func(l domain.UsageLog) bool { return l.TenantID == tenantID })
}

func (m *MemoryStore) GetTenant(_ context.Context, tenantID string) (domain.Tenant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	return t, ok, nil
}

func (m *MemoryStore) GetTenantByNumber(_ context.Context, number string) (domain.Tenant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Tenant{}, false, nil
	}
	for _, t := range m.tenants {
		if t.TelephonyNumber == number {
			return t, true, nil
		}
	}
	return domain.Tenant{}, false, nil
}

func (m *MemoryStore) TopProducts(_ context.Context, tenantID string, limit int) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.products, func(p domain.Product) bool { return p.TenantID == tenantID })
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].UnitsSold != items[j].UnitsSold {
			return items[i].UnitsSold > items[j].UnitsSold
		}
		return items[i].Name < items[j].Name
	})
	return limitSlice(items, limit), nil
}

func (m *MemoryStore) FindContactByName(_ context.Context, tenantID, name string) (domain.Contact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return domain.Contact{}, false, nil
	}
	var found domain.Contact
	ok := false
	for _, c := range m.contacts {
		if c.TenantID != tenantID {
			continue
		}
		if !strings.Contains(strings.ToLower(c.Name), needle) && !strings.Contains(strings.ToLower(c.Company), needle) {
			continue
		}
		if !ok || c.CreatedAt.After(found.CreatedAt) {
			found, ok = c, true
		}
	}
	return found, ok, nil
}

func (m *MemoryStore) LatestDeal(_ context.Context, tenantID, contactID string) (domain.Deal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found domain.Deal
	ok := false
	for _, d := range m.deals {
		if d.TenantID != tenantID || d.ContactID != contactID {
			continue
		}
		if !ok || d.CreatedAt.After(found.CreatedAt) {
			found, ok = d, true
		}
	}
	return found, ok, nil
}

func (m *MemoryStore) RecentInteractions(_ context.Context, tenantID, contactID string, limit int) ([]domain.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.interactions, func(i domain.Interaction) bool {
		return i.TenantID == tenantID && i.ContactID == contactID
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].OccurredAt.After(items[j].OccurredAt) })
	return limitSlice(items, limit), nil
}

func (m *MemoryStore) OverdueInvoices(_ context.Context, tenantID string, now time.Time, limit int) ([]domain.Invoice, error) {
	return m.listInvoices(tenantID, limit, func(inv domain.Invoice) bool { return inv.Overdue(now) }), nil
}

func (m *MemoryStore) PendingInvoices(_ context.Context, tenantID string, now time.Time, limit int) ([]domain.Invoice, error) {
	return m.listInvoices(tenantID, limit, func(inv domain.Invoice) bool { return inv.Pending(now) }), nil
}

func (m *MemoryStore) listInvoices(tenantID string, limit int, keep func(domain.Invoice) bool) []domain.Invoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.invoices, func(inv domain.Invoice) bool { return inv.TenantID == tenantID && keep(inv) })
	sort.SliceStable(items, func(i, j int) bool { return items[i].DueDate.Before(items[j].DueDate) })
	items = limitSlice(items, limit)
	for i := range items {
		for _, c := range m.contacts {
			if c.TenantID == tenantID && c.ID == items[i].ContactID {
				items[i].ContactName = c.Name
			}
		}
	}
	return items
}

func (m *MemoryStore) PendingTasks(_ context.Context, tenantID string, limit int) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.tasks, func(t domain.Task) bool { return t.TenantID == tenantID && t.Status != domain.TaskDone })
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		di, dj := items[i].DueDate, items[j].DueDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})
	return limitSlice(items, limit), nil
}

func (m *MemoryStore) ActiveDeals(_ context.Context, tenantID string, limit int) ([]domain.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.deals, func(d domain.Deal) bool { return d.TenantID == tenantID && d.Stage.Active() })
	sort.SliceStable(items, func(i, j int) bool { return items[i].Value > items[j].Value })
	return limitSlice(items, limit), nil
}

func (m *MemoryStore) RevenueBetween(_ context.Context, tenantID string, from, to time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total float64
	for _, inv := range m.invoices {
		if inv.TenantID != tenantID || inv.Status != domain.InvoicePaid || inv.PaidAt == nil {
			continue
		}
		if !inv.PaidAt.Before(from) && inv.PaidAt.Before(to) {
			total += inv.Amount
		}
	}
	return total, nil
}

func (m *MemoryStore) OutstandingInvoices(_ context.Context, tenantID string) (int64, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	var total float64
	for _, inv := range m.invoices {
		if inv.TenantID != tenantID || inv.Status == domain.InvoicePaid || inv.Status == domain.InvoiceCancelled {
			continue
		}
		count++
		total += inv.Amount
	}
	return count, total, nil
}

func (m *MemoryStore) CountOverdueInvoices(_ context.Context, tenantID string, now time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.Overdue(now) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountPendingTasks(_ context.Context, tenantID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, t := range m.tasks {
		if t.TenantID == tenantID && t.Status != domain.TaskDone {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) PipelineSummary(_ context.Context, tenantID string) (int64, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	var total float64
	for _, d := range m.deals {
		if d.TenantID == tenantID && d.Stage.Active() {
			count++
			total += d.Value
		}
	}
	return count, total, nil
}

func (m *MemoryStore) OrdersBetween(_ context.Context, tenantID string, from, to time.Time) (int64, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	var total float64
	for _, o := range m.orders {
		if o.TenantID == tenantID && !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			count++
			total += o.Total
		}
	}
	return count, total, nil
}

func (m *MemoryStore) ChurnRiskContacts(_ context.Context, tenantID string, limit int) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.contacts, func(c domain.Contact) bool { return c.TenantID == tenantID && c.ChurnRisk })
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return limitSlice(items, limit), nil
}

func (m *MemoryStore) LowStockProducts(_ context.Context, tenantID string, threshold, limit int) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.products, func(p domain.Product) bool { return p.TenantID == tenantID && p.Stock <= threshold })
	sort.SliceStable(items, func(i, j int) bool { return items[i].Stock < items[j].Stock })
	return limitSlice(items, limit), nil
}

func (m *MemoryStore) UpsertCallByVendorID(_ context.Context, call domain.Call) (domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i, existing := range m.calls {
		if existing.VendorCallID != call.VendorCallID {
			continue
		}
		if existing.TenantID != call.TenantID {
			return domain.Call{}, ErrNotFound
		}
		existing.Status = call.Status
		if call.DurationSeconds > 0 {
			existing.DurationSeconds = call.DurationSeconds
		}
		existing.UpdatedAt = now
		m.calls[i] = existing
		return existing, nil
	}
	call.ID = newID(call.ID)
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	m.calls = append(m.calls, call)
	return call, nil
}

func (m *MemoryStore) AppendTranscript(_ context.Context, tenantID, vendorCallID string, segments ...domain.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.calls {
		if c.TenantID == tenantID && c.VendorCallID == vendorCallID {
			c.Transcript = append(append([]domain.TranscriptSegment{}, c.Transcript...), segments...)
			c.UpdatedAt = time.Now().UTC()
			m.calls[i] = c
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateCall(_ context.Context, call domain.Call) (domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	call.ID = newID(call.ID)
	if call.VendorCallID == "" {
		call.VendorCallID = "manual-" + call.ID
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	m.calls = append(m.calls, call)
	return call, nil
}

func (m *MemoryStore) GetCall(_ context.Context, tenantID, id string) (domain.Call, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.calls {
		if c.TenantID == tenantID && c.ID == id {
			return c, true, nil
		}
	}
	return domain.Call{}, false, nil
}

func (m *MemoryStore) ListCalls(_ context.Context, tenantID string, page, pageSize int) ([]domain.Call, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := filter(m.calls, func(c domain.Call) bool { return c.TenantID == tenantID })
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := int64(len(items))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(items) {
		return []domain.Call{}, total, nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total, nil
}

func (m *MemoryStore) ListFAQs(_ context.Context, tenantID string) ([]domain.FAQ, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.faqs, func(f domain.FAQ) bool { return f.TenantID == tenantID }), nil
}

func (m *MemoryStore) CreateFAQ(_ context.Context, faq domain.FAQ) (domain.FAQ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	faq.ID = newID(faq.ID)
	if faq.CreatedAt.IsZero() {
		faq.CreatedAt = time.Now().UTC()
	}
	m.faqs = append(m.faqs, faq)
	return faq, nil
}

func (m *MemoryStore) SaveLogo(_ context.Context, logo domain.Logo) (domain.Logo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logo.ID = newID(logo.ID)
	if logo.CreatedAt.IsZero() {
		logo.CreatedAt = time.Now().UTC()
	}
	m.logos = append(m.logos, logo)
	return logo, nil
}

func (m *MemoryStore) CreateWebsite(_ context.Context, site domain.Website) (domain.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.websites {
		if existing.Subdomain == site.Subdomain {
			return domain.Website{}, ErrSubdomainTaken
		}
	}
	now := time.Now().UTC()
	site.ID = newID(site.ID)
	site.CreatedAt = now
	site.UpdatedAt = now
	site.Pages = nil
	m.websites = append(m.websites, site)
	return site, nil
}

func (m *MemoryStore) ListWebsites(_ context.Context, tenantID string) ([]domain.Website, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.websites, func(w domain.Website) bool { return w.TenantID == tenantID }), nil
}

func (m *MemoryStore) GetWebsite(_ context.Context, tenantID, id string) (domain.Website, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.websites {
		if w.TenantID == tenantID && w.ID == id {
			w.Pages = filter(m.pages, func(p domain.Page) bool { return p.WebsiteID == id && p.TenantID == tenantID })
			sort.SliceStable(w.Pages, func(i, j int) bool { return w.Pages[i].Slug < w.Pages[j].Slug })
			return w, true, nil
		}
	}
	return domain.Website{}, false, nil
}

func (m *MemoryStore) SetWebsitePublished(_ context.Context, tenantID, id string, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.websites {
		if w.TenantID == tenantID && w.ID == id {
			w.Published = published
			w.UpdatedAt = time.Now().UTC()
			m.websites[i] = w
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) UpsertPage(_ context.Context, page domain.Page) (domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i, p := range m.pages {
		if p.WebsiteID == page.WebsiteID && p.Slug == page.Slug {
			p.Title = page.Title
			p.Description = page.Description
			p.HTML = page.HTML
			p.UpdatedAt = now
			m.pages[i] = p
			return p, nil
		}
	}
	page.ID = newID(page.ID)
	page.CreatedAt = now
	page.UpdatedAt = now
	m.pages = append(m.pages, page)
	return page, nil
}

func (m *MemoryStore) GetPublishedPage(_ context.Context, subdomain, slug string) (domain.Page, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.websites {
		if w.Subdomain != subdomain || !w.Published {
			continue
		}
		for _, p := range m.pages {
			if p.WebsiteID == w.ID && p.TenantID == w.TenantID && p.Slug == slug {
				return p, true, nil
			}
		}
	}
	return domain.Page{}, false, nil
}

func (m *MemoryStore) SaveIntegration(_ context.Context, in domain.Integration) (domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i, existing := range m.integrations {
		if existing.TenantID == in.TenantID && existing.Provider == in.Provider {
			in.ID = existing.ID
			in.CreatedAt = existing.CreatedAt
			in.UpdatedAt = now
			m.integrations[i] = in
			return in, nil
		}
	}
	in.ID = newID(in.ID)
	in.CreatedAt = now
	in.UpdatedAt = now
	m.integrations = append(m.integrations, in)
	return in, nil
}

func (m *MemoryStore) GetIntegration(_ context.Context, tenantID, provider string) (domain.Integration, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, in := range m.integrations {
		if in.TenantID == tenantID && in.Provider == provider {
			return in, true, nil
		}
	}
	return domain.Integration{}, false, nil
}

func (m *MemoryStore) ListIntegrations(_ context.Context, tenantID string) ([]domain.Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.integrations, func(in domain.Integration) bool { return in.TenantID == tenantID }), nil
}

func (m *MemoryStore) DeleteIntegration(_ context.Context, tenantID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations = filter(m.integrations, func(in domain.Integration) bool {
		return in.TenantID != tenantID || in.Provider != provider
	})
	return nil
}

func (m *MemoryStore) AppendInteractionLog(_ context.Context, entry domain.InteractionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = newID(entry.ID)
	for _, existing := range m.chatLogs {
		if existing.ID == entry.ID {
			return nil
		}
	}
	entry.CreatedAt = orNow(entry.CreatedAt)
	m.chatLogs = append(m.chatLogs, entry)
	return nil
}

func (m *MemoryStore) AppendUsageLog(_ context.Context, entry domain.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = newID(entry.ID)
	for _, existing := range m.usageLogs {
		if existing.ID == entry.ID {
			return nil
		}
	}
	entry.CreatedAt = orNow(entry.CreatedAt)
	m.usageLogs = append(m.usageLogs, entry)
	return nil
}

func (m *MemoryStore) MonthlyUsage(_ context.Context, tenantID string, from, to time.Time) ([]domain.ServiceUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byService := make(map[string]*domain.ServiceUsage)
	for _, l := range m.usageLogs {
		if l.TenantID != tenantID || l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
			continue
		}
		agg, ok := byService[l.Service]
		if !ok {
			agg = &domain.ServiceUsage{Service: l.Service}
			byService[l.Service] = agg
		}
		agg.Requests++
		agg.PromptTokens += int64(l.PromptTokens)
		agg.CompletionTokens += int64(l.CompletionTokens)
	}
	out := make([]domain.ServiceUsage, 0, len(byService))
	for _, agg := range byService {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
