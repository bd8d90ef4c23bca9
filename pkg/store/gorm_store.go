package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bizassist/pkg/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 51723011

const taskPriorityOrder = "CASE priority WHEN 'URGENT' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 ELSE 3 END"

var (
	overdueInvoiceCond = "status NOT IN ('PAID','CANCELLED') AND (status = 'OVERDUE' OR due_date < ?)"
	pendingInvoiceCond = "status IN ('DRAFT','SENT','PENDING') AND due_date >= ?"
	activeDealCond     = "stage NOT IN ('WON','LOST')"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&TenantModel{}, &ContactModel{}, &DealModel{}, &InvoiceModel{}, &OrderModel{},
			&ProductModel{}, &TaskModel{}, &InteractionModel{}, &CallModel{}, &FAQModel{},
			&LogoModel{}, &WebsiteModel{}, &PageModel{}, &IntegrationModel{},
			&UsageLogModel{}, &InteractionLogModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) tenantDB(ctx context.Context, tenantID string) *gorm.DB {
	return s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
}

// first loads one row; a missing row is (false, nil).
func first(tx *gorm.DB, dest any) (bool, error) {
	if err := tx.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetTenant returns the tenant profile.
func (s *GormStore) GetTenant(ctx context.Context, tenantID string) (domain.Tenant, bool, error) {
	var model TenantModel
	ok, err := first(s.db.WithContext(ctx).Where("id = ?", tenantID), &model)
	if !ok || err != nil {
		return domain.Tenant{}, false, err
	}
	return tenantFromModel(model), true, nil
}

// GetTenantByNumber resolves the tenant that owns a telephony number.
func (s *GormStore) GetTenantByNumber(ctx context.Context, number string) (domain.Tenant, bool, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Tenant{}, false, nil
	}
	var model TenantModel
	ok, err := first(s.db.WithContext(ctx).Where("telephony_number = ?", number), &model)
	if !ok || err != nil {
		return domain.Tenant{}, false, err
	}
	return tenantFromModel(model), true, nil
}

// TopProducts returns the best sellers by units sold.
func (s *GormStore) TopProducts(ctx context.Context, tenantID string, limit int) ([]domain.Product, error) {
	var models []ProductModel
	if err := s.tenantDB(ctx, tenantID).Order("units_sold DESC").Order("name ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, productFromModel), nil
}

// FindContactByName matches name against contact name or company, newest first.
func (s *GormStore) FindContactByName(ctx context.Context, tenantID, name string) (domain.Contact, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Contact{}, false, nil
	}
	pattern := "%" + escapeLike(name) + "%"
	var model ContactModel
	ok, err := first(s.tenantDB(ctx, tenantID).
		Where("(name ILIKE ? OR company ILIKE ?)", pattern, pattern).
		Order("created_at DESC"), &model)
	if !ok || err != nil {
		return domain.Contact{}, false, err
	}
	return contactFromModel(model), true, nil
}

// LatestDeal returns the most recent deal of a contact.
func (s *GormStore) LatestDeal(ctx context.Context, tenantID, contactID string) (domain.Deal, bool, error) {
	var model DealModel
	ok, err := first(s.tenantDB(ctx, tenantID).Where("contact_id = ?", contactID).Order("created_at DESC"), &model)
	if !ok || err != nil {
		return domain.Deal{}, false, err
	}
	return dealFromModel(model), true, nil
}

// RecentInteractions returns the latest touchpoints of a contact.
func (s *GormStore) RecentInteractions(ctx context.Context, tenantID, contactID string, limit int) ([]domain.Interaction, error) {
	var models []InteractionModel
	if err := s.tenantDB(ctx, tenantID).Where("contact_id = ?", contactID).
		Order("occurred_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, interactionFromModel), nil
}

// OverdueInvoices returns unpaid invoices past due, oldest due first.
func (s *GormStore) OverdueInvoices(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.Invoice, error) {
	return s.listInvoices(ctx, tenantID, limit, "due_date ASC", overdueInvoiceCond, now)
}

// PendingInvoices returns open invoices not yet due, soonest first.
func (s *GormStore) PendingInvoices(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.Invoice, error) {
	return s.listInvoices(ctx, tenantID, limit, "due_date ASC", pendingInvoiceCond, now)
}

func (s *GormStore) listInvoices(ctx context.Context, tenantID string, limit int, order string, cond string, args ...any) ([]domain.Invoice, error) {
	var models []InvoiceModel
	if err := s.tenantDB(ctx, tenantID).Where(cond, args...).Order(order).Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	invoices := mapSlice(models, invoiceFromModel)
	names, err := s.contactNames(ctx, tenantID, invoices)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].ContactName = names[invoices[i].ContactID]
	}
	return invoices, nil
}

func (s *GormStore) contactNames(ctx context.Context, tenantID string, invoices []domain.Invoice) (map[string]string, error) {
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ContactID != "" {
			ids = append(ids, inv.ContactID)
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var rows []ContactModel
	if err := s.tenantDB(ctx, tenantID).Select("id", "name").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// PendingTasks returns open tasks by priority then due date, undated last.
func (s *GormStore) PendingTasks(ctx context.Context, tenantID string, limit int) ([]domain.Task, error) {
	var models []TaskModel
	if err := s.tenantDB(ctx, tenantID).Where("status <> ?", string(domain.TaskDone)).
		Order(taskPriorityOrder).
		Order("due_date ASC NULLS LAST").
		Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, taskFromModel), nil
}

// ActiveDeals returns open deals by value.
func (s *GormStore) ActiveDeals(ctx context.Context, tenantID string, limit int) ([]domain.Deal, error) {
	var models []DealModel
	if err := s.tenantDB(ctx, tenantID).Where(activeDealCond).Order("value DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, dealFromModel), nil
}

// RevenueBetween sums invoices paid in [from, to).
func (s *GormStore) RevenueBetween(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	var total float64
	err := s.tenantDB(ctx, tenantID).Model(&InvoiceModel{}).
		Where("status = ? AND paid_at >= ? AND paid_at < ?", string(domain.InvoicePaid), from, to).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

// OutstandingInvoices counts and sums invoices that are not paid or cancelled.
func (s *GormStore) OutstandingInvoices(ctx context.Context, tenantID string) (int64, float64, error) {
	var row struct {
		Count int64
		Total float64
	}
	err := s.tenantDB(ctx, tenantID).Model(&InvoiceModel{}).
		Where("status NOT IN ('PAID','CANCELLED')").
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").Scan(&row).Error
	return row.Count, row.Total, err
}

// CountOverdueInvoices counts unpaid invoices past due.
func (s *GormStore) CountOverdueInvoices(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	var count int64
	err := s.tenantDB(ctx, tenantID).Model(&InvoiceModel{}).Where(overdueInvoiceCond, now).Count(&count).Error
	return count, err
}

// CountPendingTasks counts tasks not done.
func (s *GormStore) CountPendingTasks(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.tenantDB(ctx, tenantID).Model(&TaskModel{}).Where("status <> ?", string(domain.TaskDone)).Count(&count).Error
	return count, err
}

// PipelineSummary counts active deals and sums their value.
func (s *GormStore) PipelineSummary(ctx context.Context, tenantID string) (int64, float64, error) {
	var row struct {
		Count int64
		Total float64
	}
	err := s.tenantDB(ctx, tenantID).Model(&DealModel{}).Where(activeDealCond).
		Select("COUNT(*) AS count, COALESCE(SUM(value), 0) AS total").Scan(&row).Error
	return row.Count, row.Total, err
}

// OrdersBetween counts and sums orders created in [from, to).
func (s *GormStore) OrdersBetween(ctx context.Context, tenantID string, from, to time.Time) (int64, float64, error) {
	var row struct {
		Count int64
		Total float64
	}
	err := s.tenantDB(ctx, tenantID).Model(&OrderModel{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Select("COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").Scan(&row).Error
	return row.Count, row.Total, err
}

// ChurnRiskContacts lists contacts flagged at risk.
func (s *GormStore) ChurnRiskContacts(ctx context.Context, tenantID string, limit int) ([]domain.Contact, error) {
	var models []ContactModel
	if err := s.tenantDB(ctx, tenantID).Where("churn_risk = ?", true).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, contactFromModel), nil
}

// LowStockProducts lists products at or below threshold units in stock.
func (s *GormStore) LowStockProducts(ctx context.Context, tenantID string, threshold, limit int) ([]domain.Product, error) {
	var models []ProductModel
	if err := s.tenantDB(ctx, tenantID).Where("stock <= ?", threshold).Order("stock ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, productFromModel), nil
}

// UpsertCallByVendorID creates the call or refreshes its status fields. A
// vendor id already owned by another tenant is ErrNotFound.
func (s *GormStore) UpsertCallByVendorID(ctx context.Context, call domain.Call) (domain.Call, error) {
	now := time.Now().UTC()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	model := callToModel(call)
	updates := []string{"status", "updated_at"}
	if call.DurationSeconds > 0 {
		updates = append(updates, "duration_seconds")
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vendor_call_id"}},
		Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "call_models.tenant_id = excluded.tenant_id"}}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&model).Error; err != nil {
		return domain.Call{}, err
	}
	var stored CallModel
	ok, err := first(s.tenantDB(ctx, call.TenantID).Where("vendor_call_id = ?", call.VendorCallID), &stored)
	if err != nil {
		return domain.Call{}, err
	}
	if !ok {
		// the vendor id belongs to another tenant
		return domain.Call{}, ErrNotFound
	}
	return callFromModel(stored), nil
}

// AppendTranscript appends segments to a call under a row lock.
func (s *GormStore) AppendTranscript(ctx context.Context, tenantID, vendorCallID string, segments ...domain.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model CallModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND vendor_call_id = ?", tenantID, vendorCallID).
			First(&model).Error; err != nil {
			return err
		}
		raw, err := appendTranscriptJSON(model.Transcript, segments)
		if err != nil {
			return fmt.Errorf("call %s: %w", model.ID, err)
		}
		return tx.Model(&CallModel{}).Where("id = ?", model.ID).Updates(map[string]any{
			"transcript": raw,
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

// CreateCall stores a manually logged call.
func (s *GormStore) CreateCall(ctx context.Context, call domain.Call) (domain.Call, error) {
	now := time.Now().UTC()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.VendorCallID == "" {
		call.VendorCallID = "manual-" + call.ID
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	model := callToModel(call)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Call{}, err
	}
	return call, nil
}

// GetCall returns a call by id.
func (s *GormStore) GetCall(ctx context.Context, tenantID, id string) (domain.Call, bool, error) {
	var model CallModel
	ok, err := first(s.tenantDB(ctx, tenantID).Where("id = ?", id), &model)
	if !ok || err != nil {
		return domain.Call{}, false, err
	}
	return callFromModel(model), true, nil
}

// ListCalls returns one page of calls, newest first, and the total count.
func (s *GormStore) ListCalls(ctx context.Context, tenantID string, page, pageSize int) ([]domain.Call, int64, error) {
	var total int64
	if err := s.tenantDB(ctx, tenantID).Model(&CallModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []CallModel
	if err := s.tenantDB(ctx, tenantID).Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return mapSlice(models, callFromModel), total, nil
}

// ListFAQs returns the tenant's FAQ entries.
func (s *GormStore) ListFAQs(ctx context.Context, tenantID string) ([]domain.FAQ, error) {
	var models []FAQModel
	if err := s.tenantDB(ctx, tenantID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, faqFromModel), nil
}

// CreateFAQ stores an FAQ entry.
func (s *GormStore) CreateFAQ(ctx context.Context, faq domain.FAQ) (domain.FAQ, error) {
	if faq.ID == "" {
		faq.ID = uuid.NewString()
	}
	if faq.CreatedAt.IsZero() {
		faq.CreatedAt = time.Now().UTC()
	}
	model := faqToModel(faq)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.FAQ{}, err
	}
	return faq, nil
}

// SaveLogo stores a generated logo.
func (s *GormStore) SaveLogo(ctx context.Context, logo domain.Logo) (domain.Logo, error) {
	if logo.ID == "" {
		logo.ID = uuid.NewString()
	}
	if logo.CreatedAt.IsZero() {
		logo.CreatedAt = time.Now().UTC()
	}
	model := LogoModel{
		ID:         logo.ID,
		TenantID:   logo.TenantID,
		Prompt:     logo.Prompt,
		Style:      logo.Style,
		ImageURL:   logo.ImageURL,
		StorageKey: logo.StorageKey,
		Service:    logo.Service,
		CreatedAt:  logo.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Logo{}, err
	}
	return logo, nil
}

// CreateWebsite stores a new website. Subdomains are globally unique.
func (s *GormStore) CreateWebsite(ctx context.Context, site domain.Website) (domain.Website, error) {
	now := time.Now().UTC()
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	site.CreatedAt = now
	site.UpdatedAt = now
	model := WebsiteModel{
		ID:        site.ID,
		TenantID:  site.TenantID,
		Name:      site.Name,
		Subdomain: site.Subdomain,
		Published: site.Published,
		CreatedAt: site.CreatedAt,
		UpdatedAt: site.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return domain.Website{}, ErrSubdomainTaken
		}
		return domain.Website{}, err
	}
	return site, nil
}

// ListWebsites returns the tenant's websites without pages.
func (s *GormStore) ListWebsites(ctx context.Context, tenantID string) ([]domain.Website, error) {
	var models []WebsiteModel
	if err := s.tenantDB(ctx, tenantID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, websiteFromModel), nil
}

// GetWebsite returns a website with its pages.
func (s *GormStore) GetWebsite(ctx context.Context, tenantID, id string) (domain.Website, bool, error) {
	var model WebsiteModel
	ok, err := first(s.tenantDB(ctx, tenantID).Where("id = ?", id), &model)
	if !ok || err != nil {
		return domain.Website{}, false, err
	}
	var pages []PageModel
	if err := s.tenantDB(ctx, tenantID).Where("website_id = ?", id).Order("slug ASC").Find(&pages).Error; err != nil {
		return domain.Website{}, false, err
	}
	site := websiteFromModel(model)
	site.Pages = mapSlice(pages, pageFromModel)
	return site, true, nil
}

// SetWebsitePublished toggles public visibility.
func (s *GormStore) SetWebsitePublished(ctx context.Context, tenantID, id string, published bool) error {
	res := s.tenantDB(ctx, tenantID).Model(&WebsiteModel{}).Where("id = ?", id).Updates(map[string]any{
		"published":  published,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPage creates or replaces the page at (website, slug).
func (s *GormStore) UpsertPage(ctx context.Context, page domain.Page) (domain.Page, error) {
	now := time.Now().UTC()
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = now
	model := PageModel{
		ID:          page.ID,
		WebsiteID:   page.WebsiteID,
		TenantID:    page.TenantID,
		Slug:        page.Slug,
		Title:       page.Title,
		Description: page.Description,
		HTML:        page.HTML,
		CreatedAt:   page.CreatedAt,
		UpdatedAt:   page.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "website_id"}, {Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "html", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.Page{}, err
	}
	var stored PageModel
	if err := s.db.WithContext(ctx).Where("website_id = ? AND slug = ?", page.WebsiteID, page.Slug).First(&stored).Error; err != nil {
		return domain.Page{}, err
	}
	return pageFromModel(stored), nil
}

// GetPublishedPage resolves a public page; unpublished sites are not found.
func (s *GormStore) GetPublishedPage(ctx context.Context, subdomain, slug string) (domain.Page, bool, error) {
	var site WebsiteModel
	ok, err := first(s.db.WithContext(ctx).Where("subdomain = ? AND published = ?", subdomain, true), &site)
	if !ok || err != nil {
		return domain.Page{}, false, err
	}
	var page PageModel
	ok, err = first(s.db.WithContext(ctx).Where("website_id = ? AND tenant_id = ? AND slug = ?", site.ID, site.TenantID, slug), &page)
	if !ok || err != nil {
		return domain.Page{}, false, err
	}
	return pageFromModel(page), true, nil
}

// SaveIntegration upserts the tenant's connection to provider.
func (s *GormStore) SaveIntegration(ctx context.Context, in domain.Integration) (domain.Integration, error) {
	now := time.Now().UTC()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	model := integrationToModel(in)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"method", "sealed_secret", "sealed_refresh", "token_expiry", "scopes", "connected_by", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.Integration{}, err
	}
	stored, _, err := s.GetIntegration(ctx, in.TenantID, in.Provider)
	return stored, err
}

// GetIntegration returns the tenant's connection to provider.
func (s *GormStore) GetIntegration(ctx context.Context, tenantID, provider string) (domain.Integration, bool, error) {
	var model IntegrationModel
	ok, err := first(s.tenantDB(ctx, tenantID).Where("provider = ?", provider), &model)
	if !ok || err != nil {
		return domain.Integration{}, false, err
	}
	return integrationFromModel(model), true, nil
}

// ListIntegrations returns all connections of the tenant.
func (s *GormStore) ListIntegrations(ctx context.Context, tenantID string) ([]domain.Integration, error) {
	var models []IntegrationModel
	if err := s.tenantDB(ctx, tenantID).Order("provider ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, integrationFromModel), nil
}

// DeleteIntegration removes the tenant's connection to provider.
func (s *GormStore) DeleteIntegration(ctx context.Context, tenantID, provider string) error {
	return s.tenantDB(ctx, tenantID).Where("provider = ?", provider).Delete(&IntegrationModel{}).Error
}

// AppendInteractionLog records a chat exchange.
func (s *GormStore) AppendInteractionLog(ctx context.Context, entry domain.InteractionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	model := InteractionLogModel{
		ID:         entry.ID,
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		Message:    entry.Message,
		Response:   entry.Response,
		ModuleHint: entry.ModuleHint,
		Service:    entry.Service,
		CreatedAt:  orNow(entry.CreatedAt),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// AppendUsageLog records one AI call.
func (s *GormStore) AppendUsageLog(ctx context.Context, entry domain.UsageLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	model := UsageLogModel{
		ID:               entry.ID,
		TenantID:         entry.TenantID,
		UserID:           entry.UserID,
		Service:          entry.Service,
		Operation:        entry.Operation,
		PromptTokens:     entry.PromptTokens,
		CompletionTokens: entry.CompletionTokens,
		Cached:           entry.Cached,
		CreatedAt:        orNow(entry.CreatedAt),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// MonthlyUsage groups usage logs in [from, to) by service.
func (s *GormStore) MonthlyUsage(ctx context.Context, tenantID string, from, to time.Time) ([]domain.ServiceUsage, error) {
	var rows []domain.ServiceUsage
	err := s.tenantDB(ctx, tenantID).Model(&UsageLogModel{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Select("service, COUNT(*) AS requests, COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens, COALESCE(SUM(completion_tokens), 0) AS completion_tokens").
		Group("service").Order("service ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func mapSlice[M any, D any](models []M, fn func(M) D) []D {
	out := make([]D, 0, len(models))
	for _, m := range models {
		out = append(out, fn(m))
	}
	return out
}
