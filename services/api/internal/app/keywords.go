package app

import "strings"

// keywordSet maps one symbol to the phrases that signal it.
type keywordSet[K comparable] struct {
	Key     K
	Phrases []string
}

// containsAny reports whether text contains any phrase, ignoring case.
func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// mentionsAny reports whether any phrase occurs in text as whole words,
// ignoring case and a plural "s", so "date" does not match inside "update".
func mentionsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		for from := 0; from <= len(lower)-len(p); {
			i := strings.Index(lower[from:], p)
			if i < 0 {
				break
			}
			start, end := from+i, from+i+len(p)
			if end < len(lower) && lower[end] == 's' {
				end++
			}
			if wordBoundary(lower, start-1) && wordBoundary(lower, end) {
				return true
			}
			from = start + 1
		}
	}
	return false
}

// wordBoundary reports whether position i of s is outside a word.
func wordBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c >= 0x80)
}

// matchFirst returns the first key whose phrases occur in text.
func matchFirst[K comparable](text string, table []keywordSet[K]) (K, bool) {
	for _, set := range table {
		if containsAny(text, set.Phrases) {
			return set.Key, true
		}
	}
	var zero K
	return zero, false
}

// matchAll returns every key whose phrases occur in text, in table order.
func matchAll[K comparable](text string, table []keywordSet[K]) []K {
	var out []K
	for _, set := range table {
		if containsAny(text, set.Phrases) {
			out = append(out, set.Key)
		}
	}
	return out
}

var personalTopics = []string{
	"girlfriend", "boyfriend", "dating app", "online dating", "go on a date", "first date",
	"my crush", "relationship advice", "break up with",
	"horoscope", "zodiac", "astrology",
	"recipe for dinner", "cook dinner",
	"movie recommendation", "tv show", "netflix", "celebrity gossip", "song lyrics",
	"play video games", "fortnite", "minecraft",
	"homework", "my essay",
	"lottery numbers", "sports score", "fantasy football",
	"tell me a joke", "write a poem about love",
}

const topicRedirect = "I'm your business assistant, so I can only help with questions about your business: " +
	"customers, sales, invoices, tasks, products and marketing. What would you like to know about your business?"

type DocumentType string

const (
	DocProposal     DocumentType = "proposal"
	DocSocialPost   DocumentType = "social post"
	DocPitchDeck    DocumentType = "pitch deck"
	DocBusinessPlan DocumentType = "business plan"
)

var documentTypes = []keywordSet[DocumentType]{
	{DocProposal, []string{"proposal", "quotation", "quote for", "sales pitch for"}},
	{DocSocialPost, []string{"social post", "social media post", "instagram post", "linkedin post", "facebook post", "tweet"}},
	{DocPitchDeck, []string{"pitch deck", "investor deck", "slide deck"}},
	{DocBusinessPlan, []string{"business plan"}},
}

var documentTemplates = map[DocumentType]string{
	DocProposal: `PROPOSAL FORMAT:
1. Title and recipient (use the matched contact and company when available)
2. Understanding of their needs
3. Proposed solution, referencing the business's real products
4. Pricing in the business currency
5. Timeline
6. Next steps and call to action`,
	DocSocialPost: `SOCIAL POST FORMAT:
- A hook in the first line
- Two to four short sentences about the business or product
- A clear call to action
- Three to five relevant hashtags`,
	DocPitchDeck: `PITCH DECK FORMAT (one heading per slide):
Problem, Solution, Market, Product, Traction (use real figures from the context), Business Model,
Competition, Team, Financials, Ask`,
	DocBusinessPlan: `BUSINESS PLAN FORMAT:
Executive Summary, Company Description, Market Analysis, Products and Services,
Marketing and Sales Strategy, Operations, Financial Projections (grounded in the context figures)`,
}

// imageStyles maps a style name to the adjectives appended to image prompts.
var imageStyles = map[string]string{
	"modern":     "clean, modern, minimalist design, flat colors",
	"vintage":    "vintage, retro, textured, muted palette",
	"playful":    "playful, colorful, rounded shapes, friendly",
	"corporate":  "professional, corporate, balanced, trustworthy",
	"luxury":     "elegant, luxury, gold accents, refined typography",
	"tech":       "futuristic, tech, geometric, gradient",
	"handdrawn":  "hand-drawn, sketch, organic lines",
	"minimalist": "minimalist, simple, negative space, monochrome",
}

// moduleHints is the closed set of accepted chat module hints.
var moduleHints = map[string]bool{
	"general": true, "crm": true, "sales": true, "invoicing": true, "inventory": true,
	"tasks": true, "marketing": true, "finance": true, "calls": true, "websites": true,
}
