package app

import (
	"context"
	"fmt"
	"time"

	"bizassist/pkg/domain"

	"golang.org/x/sync/errgroup"
)

const (
	lowStockThreshold = 5
	insightListLimit  = 5
)

type Insight struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"`
}

type InsightMetrics struct {
	Currency           string  `json:"currency"`
	RevenueThisMonth   float64 `json:"revenueThisMonth"`
	RevenueLastMonth   float64 `json:"revenueLastMonth"`
	OutstandingCount   int64   `json:"outstandingInvoices"`
	OutstandingTotal   float64 `json:"outstandingTotal"`
	OverdueInvoices    int64   `json:"overdueInvoices"`
	PendingTasks       int64   `json:"pendingTasks"`
	ActiveDeals        int64   `json:"activeDeals"`
	PipelineValue      float64 `json:"pipelineValue"`
	OrdersThisMonth    int64   `json:"ordersThisMonth"`
	OrderTotalMonth    float64 `json:"orderTotalThisMonth"`
	ChurnRiskContacts  int     `json:"churnRiskContacts"`
	LowStockProducts   int     `json:"lowStockProducts"`
}

type InsightsOutput struct {
	Insights    []Insight      `json:"insights"`
	Metrics     InsightMetrics `json:"metrics"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Insights summarises the tenant's current position with rule-based findings.
func (a *App) Insights(ctx context.Context, id domain.Identity) (InsightsOutput, error) {
	now := a.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := monthStart.AddDate(0, -1, 0)
	tenantID := id.TenantID

	var (
		m        InsightMetrics
		tenant   domain.Tenant
		churn    []domain.Contact
		lowStock []domain.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, _, err := a.store.GetTenant(gctx, tenantID)
		tenant = t
		return err
	})
	g.Go(func() (err error) {
		m.RevenueThisMonth, err = a.store.RevenueBetween(gctx, tenantID, monthStart, now)
		return err
	})
	g.Go(func() (err error) {
		m.RevenueLastMonth, err = a.store.RevenueBetween(gctx, tenantID, lastMonthStart, monthStart)
		return err
	})
	g.Go(func() (err error) {
		m.OutstandingCount, m.OutstandingTotal, err = a.store.OutstandingInvoices(gctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		m.OverdueInvoices, err = a.store.CountOverdueInvoices(gctx, tenantID, now)
		return err
	})
	g.Go(func() (err error) {
		m.PendingTasks, err = a.store.CountPendingTasks(gctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		m.ActiveDeals, m.PipelineValue, err = a.store.PipelineSummary(gctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		m.OrdersThisMonth, m.OrderTotalMonth, err = a.store.OrdersBetween(gctx, tenantID, monthStart, now)
		return err
	})
	g.Go(func() (err error) {
		churn, err = a.store.ChurnRiskContacts(gctx, tenantID, insightListLimit)
		return err
	})
	g.Go(func() (err error) {
		lowStock, err = a.store.LowStockProducts(gctx, tenantID, lowStockThreshold, insightListLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return InsightsOutput{}, fmt.Errorf("load insight metrics: %w", err)
	}
	m.Currency = orDefault(tenant.Currency, "USD")
	m.ChurnRiskContacts = len(churn)
	m.LowStockProducts = len(lowStock)

	return InsightsOutput{
		Insights:    deriveInsights(m, churn, lowStock),
		Metrics:     m,
		GeneratedAt: now,
	}, nil
}

func deriveInsights(m InsightMetrics, churn []domain.Contact, lowStock []domain.Product) []Insight {
	money := newMoney(m.Currency)
	out := []Insight{}

	if m.OverdueInvoices > 0 {
		out = append(out, Insight{
			Type:     "invoicing",
			Title:    fmt.Sprintf("%d overdue invoice%s", m.OverdueInvoices, plural(m.OverdueInvoices)),
			Detail:   fmt.Sprintf("%s is outstanding across %d open invoices. Follow up on the overdue ones first.", money.format(m.OutstandingTotal), m.OutstandingCount),
			Severity: "high",
		})
	}
	switch {
	case m.RevenueLastMonth > 0 && m.RevenueThisMonth < m.RevenueLastMonth*0.8:
		drop := (1 - m.RevenueThisMonth/m.RevenueLastMonth) * 100
		out = append(out, Insight{
			Type:     "revenue",
			Title:    "Revenue is behind last month",
			Detail:   fmt.Sprintf("Paid revenue so far is %s, %.0f%% below last month's %s.", money.format(m.RevenueThisMonth), drop, money.format(m.RevenueLastMonth)),
			Severity: "medium",
		})
	case m.RevenueLastMonth > 0 && m.RevenueThisMonth > m.RevenueLastMonth:
		out = append(out, Insight{
			Type:     "revenue",
			Title:    "Revenue is ahead of last month",
			Detail:   fmt.Sprintf("Paid revenue so far is %s against %s last month.", money.format(m.RevenueThisMonth), money.format(m.RevenueLastMonth)),
			Severity: "low",
		})
	}
	if m.ActiveDeals > 0 {
		out = append(out, Insight{
			Type:     "sales",
			Title:    fmt.Sprintf("%d active deal%s in the pipeline", m.ActiveDeals, plural(m.ActiveDeals)),
			Detail:   fmt.Sprintf("Open pipeline is worth %s.", money.format(m.PipelineValue)),
			Severity: "low",
		})
	}
	if len(churn) > 0 {
		names := make([]string, 0, len(churn))
		for _, c := range churn {
			names = append(names, c.Name)
		}
		out = append(out, Insight{
			Type:     "crm",
			Title:    fmt.Sprintf("%d customer%s at risk of churning", len(churn), plural(int64(len(churn)))),
			Detail:   "Reach out to " + joinNames(names) + ".",
			Severity: "medium",
		})
	}
	if len(lowStock) > 0 {
		names := make([]string, 0, len(lowStock))
		for _, p := range lowStock {
			names = append(names, fmt.Sprintf("%s (%d left)", p.Name, p.Stock))
		}
		out = append(out, Insight{
			Type:     "inventory",
			Title:    "Products running low",
			Detail:   "Restock " + joinNames(names) + ".",
			Severity: "medium",
		})
	}
	if m.PendingTasks > 0 {
		out = append(out, Insight{
			Type:     "tasks",
			Title:    fmt.Sprintf("%d pending task%s", m.PendingTasks, plural(m.PendingTasks)),
			Detail:   "Review the highest priority tasks and their due dates.",
			Severity: "low",
		})
	}
	if len(out) == 0 {
		out = append(out, Insight{
			Type:     "general",
			Title:    "Everything is on track",
			Detail:   "No overdue invoices, at-risk customers or low-stock products right now.",
			Severity: "low",
		})
	}
	return out
}

func plural(n int64) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := ""
	for i, n := range names {
		switch {
		case i == 0:
			out = n
		case i == len(names)-1:
			out += " and " + n
		default:
			out += ", " + n
		}
	}
	return out
}
