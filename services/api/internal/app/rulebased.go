package app

import (
	"strings"
)

// contextSection is one header and its body lines from a rendered context block.
type contextSection struct {
	Header string
	Lines  []string
}

func (s contextSection) name() string {
	if i := strings.Index(s.Header, " ("); i >= 0 {
		return s.Header[:i]
	}
	return s.Header
}

var sectionHeaders = []string{
	sectionProfile, sectionProducts, sectionContact, sectionLatestDeal, sectionInteractions,
	sectionOverdueInvoices, sectionPendingTasks, sectionActiveDeals, sectionPendingInvoices,
}

func isSectionHeader(line string) bool {
	for _, h := range sectionHeaders {
		if line == h || strings.HasPrefix(line, h+" (") {
			return true
		}
	}
	return false
}

// parseSections splits a rendered context block back into sections.
func parseSections(text string) []contextSection {
	var out []contextSection
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isSectionHeader(line) {
			out = append(out, contextSection{Header: line})
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].Lines = append(out[len(out)-1].Lines, line)
		}
	}
	return out
}

var ruleTopics = []keywordSet[string]{
	{sectionOverdueInvoices, []string{"overdue", "late payment", "owe", "unpaid", "collect"}},
	{sectionPendingInvoices, []string{"pending invoice", "invoice", "billing", "receivable"}},
	{sectionPendingTasks, []string{"task", "to do", "todo", "to-do", "deadline"}},
	{sectionActiveDeals, []string{"deal", "pipeline", "opportunit", "forecast"}},
	{sectionProducts, []string{"product", "best seller", "best-selling", "selling", "inventory", "stock"}},
	{sectionContact, []string{"contact", "customer", "client", "lead"}},
	{sectionProfile, []string{"profile", "my business", "company details"}},
}

// attentionSections answer broad questions such as "what needs attention".
var attentionSections = []string{sectionOverdueInvoices, sectionPendingTasks, sectionActiveDeals}

const rulesUnavailableAnswer = "I can't reach your business data or the AI providers right now, so I can't give a grounded answer. " +
	"Please try again in a few minutes."

// ruleBasedAnswer answers from the context block alone. It never fails and
// never returns an empty string.
func ruleBasedAnswer(message, contextText string) string {
	if contextText == "" || contextText == contextUnavailable {
		return rulesUnavailableAnswer
	}
	sections := parseSections(contextText)
	byName := make(map[string]contextSection, len(sections))
	for _, s := range sections {
		byName[s.name()] = s
	}

	wanted := matchAll(message, ruleTopics)
	if len(wanted) == 0 {
		wanted = attentionSections
	}

	var sb strings.Builder
	sb.WriteString("Here is what your business data shows right now:\n")
	written := 0
	for _, name := range wanted {
		s, ok := byName[name]
		if !ok {
			continue
		}
		sb.WriteString("\n" + s.Header + "\n")
		for _, line := range s.Lines {
			sb.WriteString(line + "\n")
		}
		written++
		if name == sectionContact {
			for _, sub := range []string{sectionLatestDeal, sectionInteractions} {
				if s, ok := byName[sub]; ok {
					sb.WriteString("\n" + s.Header + "\n")
					for _, line := range s.Lines {
						sb.WriteString(line + "\n")
					}
				}
			}
		}
	}
	if written == 0 {
		for _, name := range attentionSections {
			if s, ok := byName[name]; ok {
				sb.WriteString("\n" + s.Header + "\n" + strings.Join(s.Lines, "\n") + "\n")
			}
		}
	}
	sb.WriteString("\nThe AI assistant is temporarily unavailable, so this summary comes straight from your records. Ask again shortly for a fuller answer.")
	return sb.String()
}
