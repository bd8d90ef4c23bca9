package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
	OneOf      []schema          `yaml:"oneOf"`
}

type route struct {
	Path   string
	Method string
}

// servedRoutes mirrors the API server mux. Keep in sync with
// services/api/internal/server.
var servedRoutes = []route{
	{"/healthz", "get"},
	{"/api/ai/chat", "post"},
	{"/api/ai/insights", "get"},
	{"/api/ai/generate-image", "post"},
	{"/api/ai/speech-to-text", "post"},
	{"/api/ai/text-to-speech", "post"},
	{"/api/ai/image-to-text", "post"},
	{"/api/ai/image-to-image", "post"},
	{"/api/ai/usage", "get"},
	{"/api/ai/integrations", "get"},
	{"/api/ai/integrations/{provider}", "get"},
	{"/api/ai/integrations/{provider}", "post"},
	{"/api/ai/integrations/{provider}", "put"},
	{"/api/ai/integrations/{provider}", "delete"},
	{"/api/ai/google-ai-studio/oauth/start", "get"},
	{"/api/ai/google-ai-studio/oauth/callback", "get"},
	{"/api/calls/webhook", "post"},
	{"/api/calls", "get"},
	{"/api/calls", "post"},
	{"/api/calls/{id}", "get"},
	{"/api/calls/faqs", "get"},
	{"/api/calls/faqs", "post"},
	{"/api/websites", "get"},
	{"/api/websites", "post"},
	{"/api/websites/{id}", "get"},
	{"/api/websites/{id}/pages", "put"},
	{"/api/websites/{id}/publish", "post"},
	{"/sites/{subdomain}/{slug}", "get"},
}

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "options": true,
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	detail, err := getSchema(doc, "ErrorDetail")
	if err != nil {
		return err
	}
	if err := requireStringFields("ErrorDetail", detail, "field", "rule"); err != nil {
		return err
	}
	if err := validateRefs(doc); err != nil {
		return err
	}
	return validateRoutes(doc)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	if !makeSet(s.Required)["error"] {
		return errors.New(`ErrorResponse.required must include "error"`)
	}
	for _, field := range []string{"error", "message", "hint"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	setup, ok := s.Properties["setupInstructions"]
	if !ok || setup.Type != "array" || setup.Items == nil || setup.Items.Type != "string" {
		return errors.New("ErrorResponse.setupInstructions must be array of string")
	}
	license, ok := s.Properties["license"]
	if !ok || strings.TrimSpace(license.Ref) != "#/components/schemas/LicenseInfo" {
		return errors.New("ErrorResponse.license must reference LicenseInfo")
	}
	details, ok := s.Properties["details"]
	if !ok {
		return errors.New("ErrorResponse.details missing")
	}
	for _, alt := range details.OneOf {
		if alt.Type == "array" && alt.Items != nil && strings.TrimSpace(alt.Items.Ref) == "#/components/schemas/ErrorDetail" {
			return nil
		}
	}
	return errors.New("ErrorResponse.details must allow an array of ErrorDetail")
}

func requireStringFields(name string, s schema, fields ...string) error {
	required := makeSet(s.Required)
	for _, field := range fields {
		if !required[field] {
			return fmt.Errorf("%s.required must include %q", name, field)
		}
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("%s.%s must be string", name, field)
		}
	}
	return nil
}

// validateRefs checks that every schema reference inside components resolves.
func validateRefs(doc openAPIDoc) error {
	var missing []string
	var walk func(at string, s schema)
	walk = func(at string, s schema) {
		if ref := strings.TrimSpace(s.Ref); ref != "" {
			name := strings.TrimPrefix(ref, "#/components/schemas/")
			if _, ok := doc.Components.Schemas[name]; !ok || name == ref {
				missing = append(missing, at+" -> "+ref)
			}
		}
		for key, prop := range s.Properties {
			walk(at+"."+key, prop)
		}
		if s.Items != nil {
			walk(at+"[]", *s.Items)
		}
		for i, alt := range s.OneOf {
			walk(fmt.Sprintf("%s.oneOf[%d]", at, i), alt)
		}
	}
	for name, s := range doc.Components.Schemas {
		walk(name, s)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("unresolved schema refs: %s", strings.Join(missing, ", "))
	}
	return nil
}

// validateRoutes requires every served route to be declared and every
// declared operation to be served.
func validateRoutes(doc openAPIDoc) error {
	served := make(map[route]bool, len(servedRoutes))
	for _, r := range servedRoutes {
		served[r] = true
	}
	var problems []string
	for _, r := range servedRoutes {
		item, ok := doc.Paths[r.Path]
		if !ok {
			problems = append(problems, "missing path "+r.Path)
			continue
		}
		if _, ok := item[r.Method]; !ok {
			problems = append(problems, fmt.Sprintf("missing %s %s", strings.ToUpper(r.Method), r.Path))
		}
	}
	for path, item := range doc.Paths {
		for method := range item {
			if !httpMethods[method] {
				continue
			}
			if !served[route{Path: path, Method: method}] {
				problems = append(problems, fmt.Sprintf("declared route %s %s is not served", strings.ToUpper(method), path))
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
