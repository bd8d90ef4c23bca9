// Package security escalates repeated failures seen in the API audit log.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bizassist/internal/metrics"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Rule is a threshold over a fixed window for one event and outcome.
type Rule struct {
	Threshold int64
	Window    time.Duration
}

type ruleKey struct {
	event   string
	outcome string
}

// anyEvent matches every event with the rule's outcome.
const anyEvent = "*"

var defaultRules = map[ruleKey]Rule{
	{anyEvent, "rate_limited"}:          {Threshold: 20, Window: time.Minute},
	{"api.calls.webhook", "fail"}:       {Threshold: 10, Window: 5 * time.Minute},
	{"api.oauth.callback", "fail"}:      {Threshold: 10, Window: 5 * time.Minute},
	{"api.integration.connect", "fail"}: {Threshold: 10, Window: 5 * time.Minute},
	{"api.authorize", "fail"}:           {Threshold: 25, Window: 5 * time.Minute},
	{"api.license", "fail"}:             {Threshold: 30, Window: 10 * time.Minute},
}

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter counts security events per source in Redis fixed windows.
// A nil *AuditAlerter is valid and observes nothing.
type AuditAlerter struct {
	redisClient *redis.Client
	prefix      string
	rules       map[ruleKey]Rule
	now         func() time.Time
}

// NewAuditAlerter returns nil when addr is empty.
func NewAuditAlerter(addr, password, prefix string) *AuditAlerter {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	return NewAuditAlerterWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), prefix)
}

// NewAuditAlerterWithClient reuses an existing Redis client.
func NewAuditAlerterWithClient(client *redis.Client, prefix string) *AuditAlerter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bizassist:alerts"
	}
	return &AuditAlerter{
		redisClient: client,
		prefix:      prefix,
		rules:       defaultRules,
		now:         time.Now,
	}
}

// RuleFor returns the rule applied to event and outcome.
func (a *AuditAlerter) RuleFor(event, outcome string) (Rule, bool) {
	if a == nil {
		return Rule{}, false
	}
	event, outcome = strings.TrimSpace(event), strings.TrimSpace(outcome)
	if rule, ok := a.rules[ruleKey{event, outcome}]; ok {
		return rule, true
	}
	rule, ok := a.rules[ruleKey{anyEvent, outcome}]
	return rule, ok
}

// Observe counts one event from source (usually the client IP). Events
// without a rule are not stored. Crossing the threshold is reported on every
// observation until the window rolls over.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, source string) (AlertResult, error) {
	rule, ok := a.RuleFor(event, outcome)
	if !ok || a.redisClient == nil || rule.Window <= 0 {
		return AlertResult{}, nil
	}
	windowMs := rule.Window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, keySegment(event), keySegment(outcome), keySegment(source), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.redisClient, []string{key}, windowMs).Int64()
	if err != nil {
		return AlertResult{}, fmt.Errorf("count %s: %w", event, err)
	}
	result := AlertResult{
		Triggered: count >= rule.Threshold,
		Count:     count,
		Threshold: rule.Threshold,
		Window:    rule.Window,
	}
	if count == rule.Threshold {
		metrics.SecurityAlerts.WithLabelValues(event).Inc()
	}
	return result, nil
}

var keyReplacer = strings.NewReplacer(":", "_", "|", "_", " ", "_")

func keySegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return keyReplacer.Replace(in)
}
