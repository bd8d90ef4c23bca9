package app

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"

	"bizassist/internal/metrics"
	"bizassist/internal/util"
	"bizassist/pkg/domain"
)

const (
	defaultCallPageSize = 20
	maxCallPageSize     = 100
)

// CallEvent is one telephony vendor callback.
type CallEvent struct {
	CallSid         string
	Status          string
	Direction       string
	From            string
	To              string
	SpeechResult    string
	DurationSeconds int
}

// CallWebhookResult carries the stored call and, for live calls, the voice
// markup to return to the vendor.
type CallWebhookResult struct {
	Call  domain.Call
	TwiML []byte
}

type twimlSay struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

type twimlGather struct {
	Input         string    `xml:"input,attr"`
	Action        string    `xml:"action,attr,omitempty"`
	Method        string    `xml:"method,attr,omitempty"`
	SpeechTimeout string    `xml:"speechTimeout,attr,omitempty"`
	Language      string    `xml:"language,attr,omitempty"`
	Say           *twimlSay `xml:"Say,omitempty"`
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Say     *twimlSay    `xml:"Say,omitempty"`
	Gather  *twimlGather `xml:"Gather,omitempty"`
}

const (
	faqFallbackAnswer = "I'm sorry, I don't have an answer for that. Someone from our team will follow up with you."
	gatherAgainPrompt = "Is there anything else I can help you with?"
)

// HandleCallWebhook maps the vendor status, upserts the call by vendor id
// and, while the caller is on the line, answers with a speech-gathering loop.
func (a *App) HandleCallWebhook(ctx context.Context, ev CallEvent) (CallWebhookResult, error) {
	if strings.TrimSpace(ev.CallSid) == "" {
		return CallWebhookResult{}, invalid("CallSid", "CallSid is required")
	}
	status := domain.MapVendorCallStatus(ev.Status)
	metrics.WebhookEvents.WithLabelValues(string(status)).Inc()

	tenant, ok, err := a.store.GetTenantByNumber(ctx, ev.To)
	if err != nil {
		return CallWebhookResult{}, fmt.Errorf("resolve tenant: %w", err)
	}
	if !ok {
		return CallWebhookResult{}, &NotFoundError{Resource: "tenant for number", ID: ev.To}
	}
	util.SetRequestTenant(ctx, tenant.ID)

	call, err := a.store.UpsertCallByVendorID(ctx, domain.Call{
		TenantID:        tenant.ID,
		VendorCallID:    ev.CallSid,
		Direction:       orDefault(ev.Direction, "inbound"),
		From:            ev.From,
		To:              ev.To,
		Status:          status,
		DurationSeconds: ev.DurationSeconds,
	})
	if err != nil {
		return CallWebhookResult{}, fmt.Errorf("upsert call: %w", err)
	}
	if !status.Live() {
		return CallWebhookResult{Call: call}, nil
	}

	resp := twimlResponse{}
	speech := strings.TrimSpace(ev.SpeechResult)
	if speech == "" {
		resp.Gather = a.gather(fmt.Sprintf("Thank you for calling %s. How can I help you today?", orDefault(tenant.Name, "us")))
	} else {
		faqs, err := a.store.ListFAQs(ctx, tenant.ID)
		if err != nil {
			return CallWebhookResult{}, fmt.Errorf("list faqs: %w", err)
		}
		answer := faqFallbackAnswer
		if faq, ok := bestFAQ(speech, faqs); ok {
			answer = faq.Answer
		}
		now := a.now().UTC()
		if err := a.store.AppendTranscript(ctx, tenant.ID, ev.CallSid,
			domain.TranscriptSegment{Speaker: "caller", Text: speech, At: now},
			domain.TranscriptSegment{Speaker: "assistant", Text: answer, At: now},
		); err != nil {
			util.LoggerFromContext(ctx).Warn("append call transcript failed", "call_sid", ev.CallSid, "err", err)
		}
		resp.Say = a.say(answer)
		resp.Gather = a.gather(gatherAgainPrompt)
	}
	markup, err := xml.Marshal(resp)
	if err != nil {
		return CallWebhookResult{}, fmt.Errorf("encode twiml: %w", err)
	}
	return CallWebhookResult{Call: call, TwiML: append([]byte(xml.Header), markup...)}, nil
}

func (a *App) say(text string) *twimlSay {
	return &twimlSay{Voice: a.telephony.Voice, Language: a.telephony.Language, Text: text}
}

func (a *App) gather(prompt string) *twimlGather {
	return &twimlGather{
		Input:         "speech",
		Action:        a.telephony.GatherActionURL,
		Method:        "POST",
		SpeechTimeout: "auto",
		Language:      a.telephony.Language,
		Say:           a.say(prompt),
	}
}

// bestFAQ scores FAQs by keyword hits (weighted) and question word overlap.
func bestFAQ(utterance string, faqs []domain.FAQ) (domain.FAQ, bool) {
	words := wordSet(utterance)
	lower := strings.ToLower(utterance)
	best, bestScore := domain.FAQ{}, 0
	for _, faq := range faqs {
		score := 0
		for _, kw := range faq.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
				score += 3
			}
		}
		for w := range wordSet(faq.Question) {
			if len(w) > 3 && words[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = faq, score
		}
	}
	return best, bestScore >= 2
}

func wordSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = true
	}
	return out
}

type CallList struct {
	Items    []domain.Call `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int64         `json:"total"`
}

func (a *App) ListCalls(ctx context.Context, id domain.Identity, page, pageSize int) (CallList, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultCallPageSize
	}
	if pageSize > maxCallPageSize {
		return CallList{}, invalid("pageSize", fmt.Sprintf("pageSize must be at most %d", maxCallPageSize))
	}
	items, total, err := a.store.ListCalls(ctx, id.TenantID, page, pageSize)
	if err != nil {
		return CallList{}, fmt.Errorf("list calls: %w", err)
	}
	if items == nil {
		items = []domain.Call{}
	}
	return CallList{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

func (a *App) GetCall(ctx context.Context, id domain.Identity, callID string) (domain.Call, error) {
	call, ok, err := a.store.GetCall(ctx, id.TenantID, strings.TrimSpace(callID))
	if err != nil {
		return domain.Call{}, fmt.Errorf("load call: %w", err)
	}
	if !ok {
		return domain.Call{}, &NotFoundError{Resource: "call", ID: callID}
	}
	return call, nil
}

type CallInput struct {
	Direction       string
	From            string
	To              string
	Status          string
	DurationSeconds int
	Notes           string
	ContactID       string
}

// CreateCall records a call logged by hand. Status uses the internal vocabulary.
func (a *App) CreateCall(ctx context.Context, id domain.Identity, in CallInput) (domain.Call, error) {
	status := domain.CallStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	switch status {
	case "":
		status = domain.CallCompleted
	case domain.CallRinging, domain.CallAnswered, domain.CallCompleted, domain.CallBusy, domain.CallNoAnswer, domain.CallFailed:
	default:
		return domain.Call{}, invalid("status", "unknown call status "+in.Status)
	}
	if in.DurationSeconds < 0 {
		return domain.Call{}, invalid("durationSeconds", "durationSeconds must not be negative")
	}
	call, err := a.store.CreateCall(ctx, domain.Call{
		TenantID:        id.TenantID,
		Direction:       orDefault(strings.ToLower(in.Direction), "outbound"),
		From:            strings.TrimSpace(in.From),
		To:              strings.TrimSpace(in.To),
		Status:          status,
		DurationSeconds: in.DurationSeconds,
		Notes:           strings.TrimSpace(in.Notes),
		ContactID:       strings.TrimSpace(in.ContactID),
	})
	if err != nil {
		return domain.Call{}, fmt.Errorf("create call: %w", err)
	}
	return call, nil
}

func (a *App) ListFAQs(ctx context.Context, id domain.Identity) ([]domain.FAQ, error) {
	items, err := a.store.ListFAQs(ctx, id.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	if items == nil {
		items = []domain.FAQ{}
	}
	return items, nil
}

type FAQInput struct {
	Question string
	Answer   string
	Keywords []string
}

func (a *App) CreateFAQ(ctx context.Context, id domain.Identity, in FAQInput) (domain.FAQ, error) {
	question := strings.TrimSpace(in.Question)
	answer := strings.TrimSpace(in.Answer)
	if question == "" {
		return domain.FAQ{}, invalid("question", "question is required")
	}
	if answer == "" {
		return domain.FAQ{}, invalid("answer", "answer is required")
	}
	keywords := make([]string, 0, len(in.Keywords))
	for _, kw := range in.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	faq, err := a.store.CreateFAQ(ctx, domain.FAQ{TenantID: id.TenantID, Question: question, Answer: answer, Keywords: keywords})
	if err != nil {
		return domain.FAQ{}, fmt.Errorf("create faq: %w", err)
	}
	return faq, nil
}
