package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Every business table carries tenant_id.
type TenantModel struct {
	ID              string `gorm:"primaryKey"`
	Name            string `gorm:"not null"`
	Address         string
	TaxID           string
	Email           string
	Phone           string
	Currency        string `gorm:"not null;default:USD"`
	TelephonyNumber string `gorm:"index"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

type ContactModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index"`
	Name       string `gorm:"not null"`
	Company    string
	Email      string
	Phone      string
	Type       string `gorm:"not null"`
	Status     string
	ChurnRisk  bool
	Likelihood string
	Notes      string         `gorm:"type:text"`
	Tags       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

type DealModel struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"not null;index"`
	ContactID   string `gorm:"index"`
	Title       string `gorm:"not null"`
	Value       float64
	Stage       string `gorm:"not null"`
	Probability int
	CloseDate   *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
}

type InvoiceModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	ContactID string `gorm:"index"`
	Number    string `gorm:"not null"`
	Amount    float64
	Status    string    `gorm:"not null;index"`
	DueDate   time.Time `gorm:"not null"`
	PaidAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

type OrderModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	ContactID string
	Number    string `gorm:"not null"`
	Total     float64
	Status    string
	CreatedAt time.Time `gorm:"not null;index"`
}

type ProductModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	SKU       string
	Price     float64
	Stock     int
	UnitsSold int `gorm:"not null;default:0"`
}

type TaskModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	Priority  string `gorm:"not null"`
	Status    string `gorm:"not null;index"`
	DueDate   *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

type InteractionModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index"`
	ContactID  string `gorm:"not null;index"`
	Type       string
	Subject    string
	Notes      string    `gorm:"type:text"`
	OccurredAt time.Time `gorm:"not null;index"`
}

type CallModel struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string `gorm:"not null;index"`
	VendorCallID    string `gorm:"uniqueIndex;not null"`
	Direction       string
	FromNumber      string
	ToNumber        string
	Status          string `gorm:"not null"`
	DurationSeconds int
	Transcript      datatypes.JSON `gorm:"type:jsonb"`
	Notes           string         `gorm:"type:text"`
	ContactID       string
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type FAQModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	Question  string `gorm:"type:text;not null"`
	Answer    string `gorm:"type:text;not null"`
	Keywords  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

type LogoModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index"`
	Prompt     string `gorm:"type:text;not null"`
	Style      string
	ImageURL   string `gorm:"type:text"`
	StorageKey string
	Service    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type WebsiteModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Subdomain string `gorm:"uniqueIndex;not null"`
	Published bool
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type PageModel struct {
	ID          string `gorm:"primaryKey"`
	WebsiteID   string `gorm:"not null;uniqueIndex:idx_page_website_slug"`
	TenantID    string `gorm:"not null;index"`
	Slug        string `gorm:"not null;uniqueIndex:idx_page_website_slug"`
	Title       string
	Description string
	HTML        string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type IntegrationModel struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"not null;uniqueIndex:idx_integration_tenant_provider"`
	Provider      string `gorm:"not null;uniqueIndex:idx_integration_tenant_provider"`
	Method        string `gorm:"not null"`
	SealedSecret  string `gorm:"type:text"`
	SealedRefresh string `gorm:"type:text"`
	TokenExpiry   *time.Time
	Scopes        datatypes.JSON `gorm:"type:jsonb"`
	ConnectedBy   string
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type UsageLogModel struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string `gorm:"not null;index:idx_usage_tenant_created"`
	UserID           string
	Service          string `gorm:"not null"`
	Operation        string
	PromptTokens     int
	CompletionTokens int
	Cached           bool
	CreatedAt        time.Time `gorm:"not null;index:idx_usage_tenant_created"`
}

type InteractionLogModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index"`
	UserID     string
	Message    string `gorm:"type:text;not null"`
	Response   string `gorm:"type:text"`
	ModuleHint string
	Service    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}
