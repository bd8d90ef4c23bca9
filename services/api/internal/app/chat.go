package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"bizassist/internal/metrics"
	"bizassist/internal/util"
	"bizassist/pkg/ai"
	"bizassist/pkg/cache"
	"bizassist/pkg/domain"
	"bizassist/pkg/queue"
)

// Services reported for answers that no provider produced.
const (
	ServiceTopicFilter   = "topic-filter"
	ServiceClarification = "clarification"
)

type ChatInput struct {
	Message    string
	ModuleHint string
}

type ChatOutput struct {
	Message            string    `json:"message"`
	Service            string    `json:"service"`
	Usage              *ai.Usage `json:"usage,omitempty"`
	NeedsClarification bool      `json:"needsClarification,omitempty"`
	Cached             bool      `json:"cached,omitempty"`
}

// Chat answers a business question grounded in the caller's tenant data.
// Provider failures never surface: the rule-based responder answers when
// every configured provider fails.
func (a *App) Chat(ctx context.Context, id domain.Identity, in ChatInput) (ChatOutput, error) {
	hint := strings.ToLower(strings.TrimSpace(in.ModuleHint))
	if strings.TrimSpace(in.Message) == "" {
		return ChatOutput{}, invalid("message", "message is required")
	}
	if hint != "" && !moduleHints[hint] {
		return ChatOutput{}, invalid("moduleHint", "unknown module hint "+strconv.Quote(hint))
	}
	message := in.Message
	logger := util.LoggerFromContext(ctx)

	if mentionsAny(message, personalTopics) {
		metrics.ChatResponses.WithLabelValues(ServiceTopicFilter, "false").Inc()
		return ChatOutput{Message: topicRedirect, Service: ServiceTopicFilter}, nil
	}

	if cached, ok := a.lookupCache(ctx, id.TenantID, message); ok {
		out := ChatOutput{Message: cached.Message, Service: cached.Service, Cached: true}
		a.logChat(id, message, hint, out, nil)
		metrics.ChatResponses.WithLabelValues(out.Service, "true").Inc()
		return out, nil
	}

	bc := a.assembleContext(ctx, id.TenantID, message)
	docType, isDocument := matchFirst(message, documentTypes)
	if !bc.Unavailable {
		suff := assessSufficiency(bc, docType, isDocument, a.sufficiency)
		logger.Debug("context sufficiency", "confidence", suff.Confidence.String(), "signals", suff.Signals)
		if suff.needsClarification() {
			out := ChatOutput{Message: clarifyingQuestion(suff), Service: ServiceClarification, NeedsClarification: true}
			a.logChat(id, message, hint, out, nil)
			metrics.ChatResponses.WithLabelValues(ServiceClarification, "false").Inc()
			return out, nil
		}
	}

	messages := buildMessages(id.TenantID, hint, bc.Text, message)
	resp, service := a.complete(ctx, messages)
	if service == ai.ServiceRuleBased {
		resp = ai.ChatResponse{Message: ruleBasedAnswer(message, bc.Text)}
	}
	out := ChatOutput{Message: resp.Message, Service: string(service), Usage: resp.Usage}

	if service != ai.ServiceRuleBased && a.cache != nil {
		if err := a.cache.Set(ctx, id.TenantID, message, cache.CachedResponse{Message: out.Message, Service: out.Service}); err != nil {
			logger.Warn("chat cache write failed", "err", err)
		}
	}
	a.logChat(id, message, hint, out, resp.Usage)
	metrics.ChatResponses.WithLabelValues(out.Service, "false").Inc()
	return out, nil
}

// complete walks the providers in order and returns the first success. It
// returns ServiceRuleBased when every provider failed.
func (a *App) complete(ctx context.Context, messages []ai.Message) (ai.ChatResponse, ai.Service) {
	logger := util.LoggerFromContext(ctx)
	for _, p := range a.providers {
		service := p.Service()
		start := time.Now()
		resp, err := p.Chat(ctx, messages)
		metrics.ProviderLatency.WithLabelValues(string(service)).Observe(time.Since(start).Seconds())
		if err == nil && strings.TrimSpace(resp.Message) == "" {
			err = &ai.ProviderError{Service: service, Status: 502, Message: "empty completion"}
		}
		if err != nil {
			metrics.ProviderAttempts.WithLabelValues(string(service), "error").Inc()
			status := 0
			if perr, ok := ai.AsProviderError(err); ok {
				status = perr.Status
			}
			logger.Warn("chat provider failed, falling back", "service", service, "status", status, "err", err)
			continue
		}
		metrics.ProviderAttempts.WithLabelValues(string(service), "success").Inc()
		return resp, service
	}
	return ai.ChatResponse{}, ai.ServiceRuleBased
}

func (a *App) lookupCache(ctx context.Context, tenantID, message string) (cache.CachedResponse, bool) {
	if a.cache == nil {
		return cache.CachedResponse{}, false
	}
	cached, ok, err := a.cache.Get(ctx, tenantID, message)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		util.LoggerFromContext(ctx).Warn("chat cache read failed", "err", err)
		return cache.CachedResponse{}, false
	case !ok || cached.Message == "":
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return cache.CachedResponse{}, false
	default:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached, true
	}
}

// logChat sends the interaction log and, for provider answers, the usage log.
func (a *App) logChat(id domain.Identity, message, hint string, out ChatOutput, usage *ai.Usage) {
	now := a.now().UTC()
	a.send(queue.LogJob{
		ID:         util.NewID(),
		Kind:       queue.KindInteraction,
		TenantID:   id.TenantID,
		UserID:     id.UserID,
		Message:    message,
		Response:   out.Message,
		ModuleHint: hint,
		Service:    out.Service,
		CreatedAt:  now,
	})
	if out.Service == ServiceClarification || out.Service == ServiceTopicFilter {
		return
	}
	job := queue.LogJob{
		ID:        util.NewID(),
		Kind:      queue.KindUsage,
		TenantID:  id.TenantID,
		UserID:    id.UserID,
		Service:   out.Service,
		Operation: "chat",
		Cached:    out.Cached,
		CreatedAt: now,
	}
	if usage != nil {
		job.PromptTokens = usage.PromptTokens
		job.CompletionTokens = usage.CompletionTokens
	}
	a.send(job)
}
