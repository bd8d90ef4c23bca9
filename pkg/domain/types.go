package domain

import (
	"strings"
	"time"
)

// Identity is the resolved caller of an API request.
type Identity struct {
	TenantID string   `json:"tenantId"`
	UserID   string   `json:"userId"`
	Modules  []string `json:"modules"`
}

// HasModule reports whether the tenant is licensed for module.
func (i Identity) HasModule(module string) bool {
	module = strings.TrimSpace(strings.ToLower(module))
	if module == "" {
		return true
	}
	for _, m := range i.Modules {
		if strings.EqualFold(strings.TrimSpace(m), module) {
			return true
		}
	}
	return false
}

// Licensed modules.
const (
	ModuleAI       = "ai"
	ModuleCalls    = "calls"
	ModuleWebsites = "websites"
)

type Tenant struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Address         string    `json:"address,omitempty"`
	TaxID           string    `json:"taxId,omitempty"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Currency        string    `json:"currency"`
	TelephonyNumber string    `json:"telephonyNumber,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type ContactType string

const (
	ContactLead     ContactType = "LEAD"
	ContactCustomer ContactType = "CUSTOMER"
	ContactPartner  ContactType = "PARTNER"
)

type Contact struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenantId"`
	Name       string      `json:"name"`
	Company    string      `json:"company,omitempty"`
	Email      string      `json:"email,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Type       ContactType `json:"type"`
	Status     string      `json:"status,omitempty"`
	ChurnRisk  bool        `json:"churnRisk"`
	Likelihood string      `json:"likelihood,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type DealStage string

const (
	StageLead        DealStage = "LEAD"
	StageQualified   DealStage = "QUALIFIED"
	StageProposal    DealStage = "PROPOSAL"
	StageNegotiation DealStage = "NEGOTIATION"
	StageWon         DealStage = "WON"
	StageLost        DealStage = "LOST"
)

// Active reports whether the deal is still open.
func (s DealStage) Active() bool {
	return s != StageWon && s != StageLost
}

type Deal struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	ContactID   string     `json:"contactId,omitempty"`
	Title       string     `json:"title"`
	Value       float64    `json:"value"`
	Stage       DealStage  `json:"stage"`
	Probability int        `json:"probability"`
	CloseDate   *time.Time `json:"closeDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePending   InvoiceStatus = "PENDING"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceOverdue   InvoiceStatus = "OVERDUE"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

type Invoice struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	ContactID   string        `json:"contactId,omitempty"`
	ContactName string        `json:"contactName,omitempty"`
	Number      string        `json:"number"`
	Amount      float64       `json:"amount"`
	Status      InvoiceStatus `json:"status"`
	DueDate     time.Time     `json:"dueDate"`
	PaidAt      *time.Time    `json:"paidAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Overdue reports whether the invoice is unpaid and past due at now.
func (i Invoice) Overdue(now time.Time) bool {
	switch i.Status {
	case InvoicePaid, InvoiceCancelled:
		return false
	case InvoiceOverdue:
		return true
	}
	return i.DueDate.Before(now)
}

// Pending reports whether the invoice still awaits payment and is not yet due.
func (i Invoice) Pending(now time.Time) bool {
	switch i.Status {
	case InvoiceDraft, InvoiceSent, InvoicePending:
		return !i.DueDate.Before(now)
	}
	return false
}

type Order struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ContactID string    `json:"contactId,omitempty"`
	Number    string    `json:"number"`
	Total     float64   `json:"total"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type Product struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenantId"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
	UnitsSold int     `json:"unitsSold"`
}

type TaskPriority string

const (
	PriorityUrgent TaskPriority = "URGENT"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityLow    TaskPriority = "LOW"
)

// Rank orders priorities from most to least urgent.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

type Task struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	Title     string       `json:"title"`
	Priority  TaskPriority `json:"priority"`
	Status    TaskStatus   `json:"status"`
	DueDate   *time.Time   `json:"dueDate,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

type Interaction struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	ContactID  string    `json:"contactId"`
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type FAQ struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Keywords  []string  `json:"keywords,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Logo struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Prompt     string    `json:"prompt"`
	Style      string    `json:"style,omitempty"`
	ImageURL   string    `json:"imageUrl"`
	StorageKey string    `json:"-"`
	Service    string    `json:"service"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Website struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Published bool      `json:"published"`
	Pages     []Page    `json:"pages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Page struct {
	ID          string    `json:"id"`
	WebsiteID   string    `json:"websiteId"`
	TenantID    string    `json:"tenantId"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	HTML        string    `json:"html"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type IntegrationMethod string

const (
	IntegrationAPIKey IntegrationMethod = "api_key"
	IntegrationOAuth  IntegrationMethod = "oauth"
)

// ProviderGoogleAIStudio is the only vendor with a tenant-managed connection.
const ProviderGoogleAIStudio = "google-ai-studio"

// Integration is a tenant's connection to an external vendor. Secrets are sealed.
type Integration struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId"`
	Provider      string            `json:"provider"`
	Method        IntegrationMethod `json:"method"`
	SealedSecret  string            `json:"-"`
	SealedRefresh string            `json:"-"`
	TokenExpiry   *time.Time        `json:"tokenExpiry,omitempty"`
	Scopes        []string          `json:"scopes,omitempty"`
	ConnectedBy   string            `json:"connectedBy,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type UsageLog struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	UserID           string    `json:"userId"`
	Service          string    `json:"service"`
	Operation        string    `json:"operation"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	Cached           bool      `json:"cached"`
	CreatedAt        time.Time `json:"createdAt"`
}

type InteractionLog struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	UserID     string    `json:"userId"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	ModuleHint string    `json:"moduleHint,omitempty"`
	Service    string    `json:"service"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ServiceUsage aggregates one month of usage for a single service.
type ServiceUsage struct {
	Service          string `json:"service"`
	Requests         int64  `json:"requests"`
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
}
