package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bizassist/pkg/domain"
)

type UsageTotal struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

type GatewayStatus struct {
	Configured bool   `json:"configured"`
	URL        string `json:"url,omitempty"`
}

type UsageOutput struct {
	Month   string                `json:"month"`
	Usage   []domain.ServiceUsage `json:"usage"`
	Total   UsageTotal            `json:"total"`
	Gateway *GatewayStatus        `json:"gateway,omitempty"`
}

// Usage aggregates the tenant's AI usage for month ("2006-01"); empty means
// the current month.
func (a *App) Usage(ctx context.Context, id domain.Identity, month string) (UsageOutput, error) {
	var start time.Time
	month = strings.TrimSpace(month)
	if month == "" {
		now := a.now().UTC()
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return UsageOutput{}, invalid("month", "month must look like 2006-01")
		}
		start = parsed.UTC()
	}
	end := start.AddDate(0, 1, 0)
	items, err := a.store.MonthlyUsage(ctx, id.TenantID, start, end)
	if err != nil {
		return UsageOutput{}, fmt.Errorf("monthly usage: %w", err)
	}
	if items == nil {
		items = []domain.ServiceUsage{}
	}
	out := UsageOutput{Month: start.Format("2006-01"), Usage: items}
	for _, u := range items {
		out.Total.Requests += u.Requests
		out.Total.PromptTokens += u.PromptTokens
		out.Total.CompletionTokens += u.CompletionTokens
	}
	if a.gateway != nil {
		out.Gateway = &GatewayStatus{Configured: true, URL: a.gateway.BaseURL()}
	}
	return out, nil
}
