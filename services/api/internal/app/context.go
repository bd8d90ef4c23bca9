package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bizassist/internal/util"
	"bizassist/pkg/domain"
)

const (
	contextProductLimit     = 10
	contextListLimit        = 10
	contextInteractionLimit = 5
)

// Section headers of the context block, in render order.
const (
	sectionProfile         = "BUSINESS PROFILE"
	sectionProducts        = "TOP PRODUCTS"
	sectionContact         = "MATCHED CONTACT"
	sectionLatestDeal      = "LATEST DEAL"
	sectionInteractions    = "RECENT INTERACTIONS"
	sectionOverdueInvoices = "OVERDUE INVOICES"
	sectionPendingTasks    = "PENDING TASKS"
	sectionActiveDeals     = "ACTIVE DEALS"
	sectionPendingInvoices = "PENDING INVOICES"
)

const (
	noOverdueInvoices = "None - You have no overdue invoices."
	noPendingTasks    = "None - You have no pending tasks."
	noActiveDeals     = "None - You have no active deals."
	noPendingInvoices = "None - You have no pending invoices."
	noProductSales    = "None - No product sales recorded yet."

	contextUnavailable = "Business context unavailable - answer from general business knowledge and say that live data could not be loaded."
)

// businessContext is the tenant data gathered for one chat request.
type businessContext struct {
	Tenant       domain.Tenant
	HasTenant    bool
	Products     []domain.Product
	Contact      *domain.Contact
	Deal         *domain.Deal
	Interactions []domain.Interaction
	Overdue      []domain.Invoice
	Tasks        []domain.Task
	Deals        []domain.Deal
	Pending      []domain.Invoice

	// Recipient is the first name extracted from the message, matched or not.
	Recipient   string
	Unavailable bool
	Text        string
}

// namePattern captures a run of capitalised words such as "Acme Corp" or "Smith & Sons".
const namePattern = `([A-Z][\w&'.-]*(?:\s+(?:[A-Z][\w&'.-]*|&|of|and))*)`

var (
	// "proposal for Acme Corp".
	nameAfterPreposition = regexp.MustCompile(`\b(?:for|to|with|from|about)\s+` + namePattern)
	// "Acme's proposal", "Acme quote".
	nameBeforeDocument = regexp.MustCompile(namePattern + `(?:'s)?\s+(?:proposal|quote|quotation|invoice|deal|account)\b`)
	// "contact Bob", "call Jane Doe".
	nameAfterVerb = regexp.MustCompile(`\b(?:contact|call|email|client|customer|lead)\s+` + namePattern)
)

var nameStopwords = map[string]bool{
	"I": true, "A": true, "An": true, "The": true, "My": true, "Our": true, "Me": true, "Us": true,
	"What": true, "Which": true, "Who": true, "How": true, "When": true, "Where": true, "Why": true,
	"Write": true, "Create": true, "Draft": true, "Make": true, "Generate": true, "Prepare": true,
	"Please": true, "Can": true, "Could": true, "Show": true, "Give": true, "Send": true, "Help": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true, "Friday": true,
	"Saturday": true, "Sunday": true, "Today": true, "Tomorrow": true,
}

// extractNames returns candidate contact or company names found in message,
// best candidates first. It is a heuristic, not a parser.
func extractNames(message string) []string {
	seen := map[string]bool{}
	var out []string
	for _, re := range []*regexp.Regexp{nameAfterPreposition, nameAfterVerb, nameBeforeDocument} {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			name := cleanName(m[1])
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			out = append(out, name)
		}
	}
	return out
}

func cleanName(raw string) string {
	words := strings.Fields(strings.Trim(raw, " .,'"))
	for len(words) > 0 && nameStopwords[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 {
		last := words[len(words)-1]
		if last == "&" || last == "of" || last == "and" {
			words = words[:len(words)-1]
			continue
		}
		break
	}
	name := strings.TrimRight(strings.Join(words, " "), ".,'")
	name = strings.TrimSuffix(name, "'s")
	return name
}

// assembleContext loads the tenant-scoped records for message. A failing
// query degrades the whole block to the unavailable placeholder.
func (a *App) assembleContext(ctx context.Context, tenantID, message string) businessContext {
	bc, err := a.loadContext(ctx, tenantID, message)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("business context unavailable", "tenant_id", tenantID, "err", err)
		return businessContext{Unavailable: true, Recipient: bc.Recipient, Text: contextUnavailable}
	}
	bc.Text = renderContext(bc, a.now())
	return bc
}

func (a *App) loadContext(ctx context.Context, tenantID, message string) (businessContext, error) {
	var bc businessContext
	var err error
	now := a.now()

	names := extractNames(message)
	if len(names) > 0 {
		bc.Recipient = names[0]
	}

	if bc.Tenant, bc.HasTenant, err = a.store.GetTenant(ctx, tenantID); err != nil {
		return bc, fmt.Errorf("load tenant: %w", err)
	}
	if bc.Products, err = a.store.TopProducts(ctx, tenantID, contextProductLimit); err != nil {
		return bc, fmt.Errorf("load products: %w", err)
	}
	for _, name := range names {
		contact, ok, err := a.store.FindContactByName(ctx, tenantID, name)
		if err != nil {
			return bc, fmt.Errorf("match contact: %w", err)
		}
		if !ok {
			continue
		}
		bc.Contact = &contact
		bc.Recipient = name
		break
	}
	if bc.Contact != nil {
		deal, ok, err := a.store.LatestDeal(ctx, tenantID, bc.Contact.ID)
		if err != nil {
			return bc, fmt.Errorf("load latest deal: %w", err)
		}
		if ok {
			bc.Deal = &deal
		}
		if bc.Interactions, err = a.store.RecentInteractions(ctx, tenantID, bc.Contact.ID, contextInteractionLimit); err != nil {
			return bc, fmt.Errorf("load interactions: %w", err)
		}
	}
	if bc.Overdue, err = a.store.OverdueInvoices(ctx, tenantID, now, contextListLimit); err != nil {
		return bc, fmt.Errorf("load overdue invoices: %w", err)
	}
	if bc.Tasks, err = a.store.PendingTasks(ctx, tenantID, contextListLimit); err != nil {
		return bc, fmt.Errorf("load pending tasks: %w", err)
	}
	if bc.Deals, err = a.store.ActiveDeals(ctx, tenantID, contextListLimit); err != nil {
		return bc, fmt.Errorf("load active deals: %w", err)
	}
	if bc.Pending, err = a.store.PendingInvoices(ctx, tenantID, now, contextListLimit); err != nil {
		return bc, fmt.Errorf("load pending invoices: %w", err)
	}
	return bc, nil
}

func renderContext(bc businessContext, now time.Time) string {
	m := newMoney(bc.Tenant.Currency)
	var sb strings.Builder

	sb.WriteString(sectionProfile + "\n")
	if bc.HasTenant {
		writeField(&sb, "Name", bc.Tenant.Name)
		writeField(&sb, "Address", bc.Tenant.Address)
		writeField(&sb, "Tax ID", bc.Tenant.TaxID)
		writeField(&sb, "Email", bc.Tenant.Email)
		writeField(&sb, "Phone", bc.Tenant.Phone)
		writeField(&sb, "Currency", orDefault(bc.Tenant.Currency, "USD"))
	} else {
		sb.WriteString("No business profile on record.\n")
	}

	sold := soldProducts(bc.Products)
	var units int64
	for _, p := range sold {
		units += int64(p.UnitsSold)
	}
	fmt.Fprintf(&sb, "\n%s (%d products, %s units sold)\n", sectionProducts, len(sold), m.count(units))
	if len(sold) == 0 {
		sb.WriteString(noProductSales + "\n")
	}
	for _, p := range sold {
		fmt.Fprintf(&sb, "- %s: %s sold at %s, %d in stock\n", p.Name, m.count(int64(p.UnitsSold)), m.format(p.Price), p.Stock)
	}

	if bc.Contact != nil {
		c := bc.Contact
		sb.WriteString("\n" + sectionContact + "\n")
		writeField(&sb, "Name", c.Name)
		writeField(&sb, "Company", c.Company)
		writeField(&sb, "Type", string(c.Type))
		writeField(&sb, "Status", c.Status)
		writeField(&sb, "Email", c.Email)
		writeField(&sb, "Phone", c.Phone)
		if c.ChurnRisk {
			sb.WriteString("Churn risk: yes\n")
		}
		writeField(&sb, "Likelihood", c.Likelihood)
		writeField(&sb, "Notes", c.Notes)
		if len(c.Tags) > 0 {
			writeField(&sb, "Tags", strings.Join(c.Tags, ", "))
		}
		sb.WriteString("\n" + sectionLatestDeal + "\n")
		if bc.Deal == nil {
			sb.WriteString("None - No deals with this contact yet.\n")
		} else {
			sb.WriteString("- " + dealLine(*bc.Deal, m) + "\n")
		}
		fmt.Fprintf(&sb, "\n%s (%d)\n", sectionInteractions, len(bc.Interactions))
		if len(bc.Interactions) == 0 {
			sb.WriteString("None - No interactions logged with this contact.\n")
		}
		for _, in := range bc.Interactions {
			line := fmt.Sprintf("- %s %s: %s", in.OccurredAt.Format("2006-01-02"), strings.ToLower(in.Type), in.Subject)
			if in.Notes != "" {
				line += " (" + in.Notes + ")"
			}
			sb.WriteString(line + "\n")
		}
	}

	fmt.Fprintf(&sb, "\n%s (%d, total %s)\n", sectionOverdueInvoices, len(bc.Overdue), m.format(sumInvoices(bc.Overdue)))
	if len(bc.Overdue) == 0 {
		sb.WriteString(noOverdueInvoices + "\n")
	}
	for _, inv := range bc.Overdue {
		days := int(now.Sub(inv.DueDate).Hours() / 24)
		fmt.Fprintf(&sb, "- %s: %s, due %s (%d days overdue)\n", invoiceLabel(inv), m.format(inv.Amount), inv.DueDate.Format("2006-01-02"), days)
	}

	fmt.Fprintf(&sb, "\n%s (%d)\n", sectionPendingTasks, len(bc.Tasks))
	if len(bc.Tasks) == 0 {
		sb.WriteString(noPendingTasks + "\n")
	}
	for _, t := range bc.Tasks {
		due := "no due date"
		if t.DueDate != nil {
			due = "due " + t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "- [%s] %s (%s, %s)\n", t.Priority, t.Title, strings.ToLower(string(t.Status)), due)
	}

	var pipeline float64
	for _, d := range bc.Deals {
		pipeline += d.Value
	}
	fmt.Fprintf(&sb, "\n%s (%d, pipeline %s)\n", sectionActiveDeals, len(bc.Deals), m.format(pipeline))
	if len(bc.Deals) == 0 {
		sb.WriteString(noActiveDeals + "\n")
	}
	for _, d := range bc.Deals {
		sb.WriteString("- " + dealLine(d, m) + "\n")
	}

	fmt.Fprintf(&sb, "\n%s (%d, total %s)\n", sectionPendingInvoices, len(bc.Pending), m.format(sumInvoices(bc.Pending)))
	if len(bc.Pending) == 0 {
		sb.WriteString(noPendingInvoices + "\n")
	}
	for _, inv := range bc.Pending {
		fmt.Fprintf(&sb, "- %s: %s, due %s (%s)\n", invoiceLabel(inv), m.format(inv.Amount), inv.DueDate.Format("2006-01-02"), strings.ToLower(string(inv.Status)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeField(sb *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		sb.WriteString(label + ": " + value + "\n")
	}
}

func soldProducts(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.UnitsSold > 0 {
			out = append(out, p)
		}
	}
	return out
}

func sumInvoices(items []domain.Invoice) float64 {
	var total float64
	for _, inv := range items {
		total += inv.Amount
	}
	return total
}

func invoiceLabel(inv domain.Invoice) string {
	if inv.ContactName == "" {
		return inv.Number
	}
	return inv.Number + " (" + inv.ContactName + ")"
}

func dealLine(d domain.Deal, m money) string {
	line := fmt.Sprintf("%s: %s, stage %s, %d%% probability", d.Title, m.format(d.Value), strings.ToLower(string(d.Stage)), d.Probability)
	if d.CloseDate != nil {
		line += ", closes " + d.CloseDate.Format("2006-01-02")
	}
	return line
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
