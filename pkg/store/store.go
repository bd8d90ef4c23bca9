package store

import (
	"context"
	"time"

	"bizassist/pkg/domain"
)

// BusinessReader serves the chat context block. Every method is scoped by tenant.
type BusinessReader interface {
	GetTenant(ctx context.Context, tenantID string) (domain.Tenant, bool, error)
	TopProducts(ctx context.Context, tenantID string, limit int) ([]domain.Product, error)
	FindContactByName(ctx context.Context, tenantID, name string) (domain.Contact, bool, error)
	LatestDeal(ctx context.Context, tenantID, contactID string) (domain.Deal, bool, error)
	RecentInteractions(ctx context.Context, tenantID, contactID string, limit int) ([]domain.Interaction, error)
	OverdueInvoices(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.Invoice, error)
	PendingTasks(ctx context.Context, tenantID string, limit int) ([]domain.Task, error)
	ActiveDeals(ctx context.Context, tenantID string, limit int) ([]domain.Deal, error)
	PendingInvoices(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.Invoice, error)
}

// MetricsReader serves business insights aggregates.
type MetricsReader interface {
	RevenueBetween(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
	OutstandingInvoices(ctx context.Context, tenantID string) (count int64, total float64, err error)
	CountOverdueInvoices(ctx context.Context, tenantID string, now time.Time) (int64, error)
	CountPendingTasks(ctx context.Context, tenantID string) (int64, error)
	PipelineSummary(ctx context.Context, tenantID string) (count int64, value float64, err error)
	OrdersBetween(ctx context.Context, tenantID string, from, to time.Time) (count int64, total float64, err error)
	ChurnRiskContacts(ctx context.Context, tenantID string, limit int) ([]domain.Contact, error)
	LowStockProducts(ctx context.Context, tenantID string, threshold, limit int) ([]domain.Product, error)
}

// CallStore persists telephony records.
type CallStore interface {
	GetTenantByNumber(ctx context.Context, number string) (domain.Tenant, bool, error)
	UpsertCallByVendorID(ctx context.Context, call domain.Call) (domain.Call, error)
	AppendTranscript(ctx context.Context, tenantID, vendorCallID string, segments ...domain.TranscriptSegment) error
	CreateCall(ctx context.Context, call domain.Call) (domain.Call, error)
	GetCall(ctx context.Context, tenantID, id string) (domain.Call, bool, error)
	ListCalls(ctx context.Context, tenantID string, page, pageSize int) ([]domain.Call, int64, error)
	ListFAQs(ctx context.Context, tenantID string) ([]domain.FAQ, error)
	CreateFAQ(ctx context.Context, faq domain.FAQ) (domain.FAQ, error)
}

// AssetStore persists generated assets and website content.
type AssetStore interface {
	SaveLogo(ctx context.Context, logo domain.Logo) (domain.Logo, error)
	CreateWebsite(ctx context.Context, site domain.Website) (domain.Website, error)
	ListWebsites(ctx context.Context, tenantID string) ([]domain.Website, error)
	GetWebsite(ctx context.Context, tenantID, id string) (domain.Website, bool, error)
	SetWebsitePublished(ctx context.Context, tenantID, id string, published bool) error
	UpsertPage(ctx context.Context, page domain.Page) (domain.Page, error)
	GetPublishedPage(ctx context.Context, subdomain, slug string) (domain.Page, bool, error)
}

// IntegrationStore persists sealed vendor credentials.
type IntegrationStore interface {
	SaveIntegration(ctx context.Context, in domain.Integration) (domain.Integration, error)
	GetIntegration(ctx context.Context, tenantID, provider string) (domain.Integration, bool, error)
	ListIntegrations(ctx context.Context, tenantID string) ([]domain.Integration, error)
	DeleteIntegration(ctx context.Context, tenantID, provider string) error
}

// LogWriter appends log rows. Used by the log worker.
type LogWriter interface {
	AppendInteractionLog(ctx context.Context, entry domain.InteractionLog) error
	AppendUsageLog(ctx context.Context, entry domain.UsageLog) error
}

// UsageReader aggregates usage logs.
type UsageReader interface {
	MonthlyUsage(ctx context.Context, tenantID string, from, to time.Time) ([]domain.ServiceUsage, error)
}

// Store is the full persistence surface of the API service.
type Store interface {
	BusinessReader
	MetricsReader
	CallStore
	AssetStore
	IntegrationStore
	LogWriter
	UsageReader
}
