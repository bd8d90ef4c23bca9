package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"bizassist/pkg/domain"

	"gorm.io/datatypes"
)

var (
	ErrNotFound       = errors.New("store: record not found")
	ErrSubdomainTaken = errors.New("store: subdomain already taken")
)

func tenantFromModel(m TenantModel) domain.Tenant {
	currency := m.Currency
	if currency == "" {
		currency = "USD"
	}
	return domain.Tenant{
		ID:              m.ID,
		Name:            m.Name,
		Address:         m.Address,
		TaxID:           m.TaxID,
		Email:           m.Email,
		Phone:           m.Phone,
		Currency:        currency,
		TelephonyNumber: m.TelephonyNumber,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func contactFromModel(m ContactModel) domain.Contact {
	return domain.Contact{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Name:       m.Name,
		Company:    m.Company,
		Email:      m.Email,
		Phone:      m.Phone,
		Type:       domain.ContactType(m.Type),
		Status:     m.Status,
		ChurnRisk:  m.ChurnRisk,
		Likelihood: m.Likelihood,
		Notes:      m.Notes,
		Tags:       decodeStrings(m.Tags),
		CreatedAt:  m.CreatedAt,
	}
}

func dealFromModel(m DealModel) domain.Deal {
	return domain.Deal{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ContactID:   m.ContactID,
		Title:       m.Title,
		Value:       m.Value,
		Stage:       domain.DealStage(m.Stage),
		Probability: m.Probability,
		CloseDate:   m.CloseDate,
		CreatedAt:   m.CreatedAt,
	}
}

func invoiceFromModel(m InvoiceModel) domain.Invoice {
	return domain.Invoice{
		ID:        m.ID,
		TenantID:  m.TenantID,
		ContactID: m.ContactID,
		Number:    m.Number,
		Amount:    m.Amount,
		Status:    domain.InvoiceStatus(m.Status),
		DueDate:   m.DueDate,
		PaidAt:    m.PaidAt,
		CreatedAt: m.CreatedAt,
	}
}

func productFromModel(m ProductModel) domain.Product {
	return domain.Product{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		SKU:       m.SKU,
		Price:     m.Price,
		Stock:     m.Stock,
		UnitsSold: m.UnitsSold,
	}
}

func taskFromModel(m TaskModel) domain.Task {
	return domain.Task{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Title:     m.Title,
		Priority:  domain.TaskPriority(m.Priority),
		Status:    domain.TaskStatus(m.Status),
		DueDate:   m.DueDate,
		CreatedAt: m.CreatedAt,
	}
}

func interactionFromModel(m InteractionModel) domain.Interaction {
	return domain.Interaction{
		ID:         m.ID,
		TenantID:   m.TenantID,
		ContactID:  m.ContactID,
		Type:       m.Type,
		Subject:    m.Subject,
		Notes:      m.Notes,
		OccurredAt: m.OccurredAt,
	}
}

func callToModel(c domain.Call) CallModel {
	transcript, _ := json.Marshal(c.Transcript)
	return CallModel{
		ID:              c.ID,
		TenantID:        c.TenantID,
		VendorCallID:    c.VendorCallID,
		Direction:       c.Direction,
		FromNumber:      c.From,
		ToNumber:        c.To,
		Status:          string(c.Status),
		DurationSeconds: c.DurationSeconds,
		Transcript:      transcript,
		Notes:           c.Notes,
		ContactID:       c.ContactID,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func callFromModel(m CallModel) domain.Call {
	var transcript []domain.TranscriptSegment
	if len(m.Transcript) > 0 {
		_ = json.Unmarshal(m.Transcript, &transcript)
	}
	return domain.Call{
		ID:              m.ID,
		TenantID:        m.TenantID,
		VendorCallID:    m.VendorCallID,
		Direction:       m.Direction,
		From:            m.FromNumber,
		To:              m.ToNumber,
		Status:          domain.CallStatus(m.Status),
		DurationSeconds: m.DurationSeconds,
		Transcript:      transcript,
		Notes:           m.Notes,
		ContactID:       m.ContactID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// appendTranscriptJSON decodes a stored transcript and appends segments. A
// transcript that fails to decode is an error so the append never overwrites it.
func appendTranscriptJSON(raw datatypes.JSON, segments []domain.TranscriptSegment) (datatypes.JSON, error) {
	var transcript []domain.TranscriptSegment
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	out, err := json.Marshal(append(transcript, segments...))
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return datatypes.JSON(out), nil
}

func faqToModel(f domain.FAQ) FAQModel {
	return FAQModel{
		ID:        f.ID,
		TenantID:  f.TenantID,
		Question:  f.Question,
		Answer:    f.Answer,
		Keywords:  encodeStrings(f.Keywords),
		CreatedAt: f.CreatedAt,
	}
}

func faqFromModel(m FAQModel) domain.FAQ {
	return domain.FAQ{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Question:  m.Question,
		Answer:    m.Answer,
		Keywords:  decodeStrings(m.Keywords),
		CreatedAt: m.CreatedAt,
	}
}

func websiteFromModel(m WebsiteModel) domain.Website {
	return domain.Website{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		Subdomain: m.Subdomain,
		Published: m.Published,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func pageFromModel(m PageModel) domain.Page {
	return domain.Page{
		ID:          m.ID,
		WebsiteID:   m.WebsiteID,
		TenantID:    m.TenantID,
		Slug:        m.Slug,
		Title:       m.Title,
		Description: m.Description,
		HTML:        m.HTML,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func integrationToModel(in domain.Integration) IntegrationModel {
	return IntegrationModel{
		ID:            in.ID,
		TenantID:      in.TenantID,
		Provider:      in.Provider,
		Method:        string(in.Method),
		SealedSecret:  in.SealedSecret,
		SealedRefresh: in.SealedRefresh,
		TokenExpiry:   in.TokenExpiry,
		Scopes:        encodeStrings(in.Scopes),
		ConnectedBy:   in.ConnectedBy,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
}

func integrationFromModel(m IntegrationModel) domain.Integration {
	return domain.Integration{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Provider:      m.Provider,
		Method:        domain.IntegrationMethod(m.Method),
		SealedSecret:  m.SealedSecret,
		SealedRefresh: m.SealedRefresh,
		TokenExpiry:   m.TokenExpiry,
		Scopes:        decodeStrings(m.Scopes),
		ConnectedBy:   m.ConnectedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func encodeStrings(values []string) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("[]")
	}
	raw, _ := json.Marshal(values)
	return datatypes.JSON(raw)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	_ = json.Unmarshal(raw, &out)
	return out
}
