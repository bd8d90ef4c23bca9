package main

import (
	"strings"
	"testing"
)

func TestRepositorySpecIsConsistent(t *testing.T) {
	doc, err := loadDoc("../../api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := check(doc); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestValidateRoutesReportsDrift(t *testing.T) {
	doc, err := loadDoc("../../api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	delete(doc.Paths, "/api/ai/chat")
	doc.Paths["/api/ai/legacy"] = doc.Paths["/api/ai/usage"]

	err = validateRoutes(doc)
	if err == nil {
		t.Fatalf("expected route drift error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing path /api/ai/chat") {
		t.Fatalf("missing path not reported: %v", err)
	}
	if !strings.Contains(msg, "GET /api/ai/legacy is not served") {
		t.Fatalf("unserved route not reported: %v", err)
	}
}

func TestValidateErrorResponseRequiresErrorField(t *testing.T) {
	s := schema{
		Type:     "object",
		Required: []string{"message"},
		Properties: map[string]schema{
			"error": {Type: "string"},
		},
	}
	if err := validateErrorResponse(s); err == nil || !strings.Contains(err.Error(), `"error"`) {
		t.Fatalf("expected missing required error field, got %v", err)
	}
}

func TestValidateRefsReportsDanglingRef(t *testing.T) {
	var doc openAPIDoc
	doc.Components.Schemas = map[string]schema{
		"Website": {Type: "object", Properties: map[string]schema{
			"pages": {Type: "array", Items: &schema{Ref: "#/components/schemas/Page"}},
		}},
	}
	if err := validateRefs(doc); err == nil || !strings.Contains(err.Error(), "Website.pages[]") {
		t.Fatalf("expected dangling ref error, got %v", err)
	}
}
