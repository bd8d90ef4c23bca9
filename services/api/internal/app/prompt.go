package app

import (
	"strconv"
	"strings"

	"bizassist/pkg/ai"
)

var assistantRules = []string{
	"Only answer questions about this business: customers, sales, invoices, tasks, products, marketing and finance. Politely decline anything else.",
	"Ground every figure in the BUSINESS DATA block. Never invent customers, amounts or dates.",
	"Format every amount in the business currency shown in the BUSINESS PROFILE, with thousands separators and two decimals.",
	"Never tell the user to go check the dashboard or another screen. Give the answer directly.",
	"When a list in the data says None, say so plainly instead of guessing.",
	"If live data could not be loaded, say that clearly and answer from general business knowledge.",
	"Be concise. Prefer short paragraphs and bullet lists. End with one concrete next step when it helps.",
}

// buildSystemPrompt is deterministic in its inputs.
func buildSystemPrompt(tenantID, moduleHint string, docType DocumentType, isDocument bool) string {
	var sb strings.Builder
	sb.WriteString("You are the AI business assistant for a small business.\n")
	sb.WriteString("Tenant: " + tenantID + "\n")
	sb.WriteString("Module: " + orDefault(moduleHint, "general") + "\n\n")
	sb.WriteString("RULES:\n")
	for i, rule := range assistantRules {
		sb.WriteString(strconv.Itoa(i+1) + ". " + rule + "\n")
	}
	if isDocument {
		sb.WriteString("\nThe user is asking for a " + string(docType) + ". Use the real business data and follow this structure.\n")
		sb.WriteString(documentTemplates[docType] + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildUserPrompt(contextText, message string) string {
	var sb strings.Builder
	sb.WriteString("BUSINESS DATA:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(message)
	sb.WriteString("\n\nAnswer using the business data above. Use the exact names, numbers and dates from it, ")
	sb.WriteString("keep amounts in the business currency, and use markdown headings or bullets where they help readability.")
	return sb.String()
}

func buildMessages(tenantID, moduleHint, contextText, message string) []ai.Message {
	docType, isDocument := matchFirst(message, documentTypes)
	return []ai.Message{
		{Role: ai.RoleSystem, Content: buildSystemPrompt(tenantID, moduleHint, docType, isDocument)},
		{Role: ai.RoleUser, Content: buildUserPrompt(contextText, message)},
	}
}

