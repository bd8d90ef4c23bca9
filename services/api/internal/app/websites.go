package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"bizassist/pkg/domain"
	"bizassist/pkg/store"

	"golang.org/x/net/html"
)

var (
	subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,126}[a-z0-9])?$`)
)

const maxPageHTML = 512 << 10

type WebsiteInput struct {
	Name      string
	Subdomain string
}

func (a *App) CreateWebsite(ctx context.Context, id domain.Identity, in WebsiteInput) (domain.Website, error) {
	name := strings.TrimSpace(in.Name)
	subdomain := strings.ToLower(strings.TrimSpace(in.Subdomain))
	if name == "" {
		return domain.Website{}, invalid("name", "name is required")
	}
	if !subdomainPattern.MatchString(subdomain) {
		return domain.Website{}, invalid("subdomain", "subdomain must be lowercase letters, digits and hyphens")
	}
	site, err := a.store.CreateWebsite(ctx, domain.Website{TenantID: id.TenantID, Name: name, Subdomain: subdomain})
	if errors.Is(err, store.ErrSubdomainTaken) {
		return domain.Website{}, invalid("subdomain", "subdomain is already taken")
	}
	if err != nil {
		return domain.Website{}, fmt.Errorf("create website: %w", err)
	}
	return site, nil
}

func (a *App) ListWebsites(ctx context.Context, id domain.Identity) ([]domain.Website, error) {
	items, err := a.store.ListWebsites(ctx, id.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	if items == nil {
		items = []domain.Website{}
	}
	return items, nil
}

// GetWebsite returns the website with its pages.
func (a *App) GetWebsite(ctx context.Context, id domain.Identity, websiteID string) (domain.Website, error) {
	site, ok, err := a.store.GetWebsite(ctx, id.TenantID, websiteID)
	if err != nil {
		return domain.Website{}, fmt.Errorf("load website: %w", err)
	}
	if !ok {
		return domain.Website{}, &NotFoundError{Resource: "website", ID: websiteID}
	}
	return site, nil
}

type PageInput struct {
	Slug        string
	Title       string
	Description string
	HTML        string
}

// PutPage creates or replaces the page at slug. A missing title or
// description is taken from the HTML.
func (a *App) PutPage(ctx context.Context, id domain.Identity, websiteID string, in PageInput) (domain.Page, error) {
	if _, err := a.GetWebsite(ctx, id, websiteID); err != nil {
		return domain.Page{}, err
	}
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if !slugPattern.MatchString(slug) {
		return domain.Page{}, invalid("slug", "slug must be lowercase letters, digits and hyphens")
	}
	if strings.TrimSpace(in.HTML) == "" {
		return domain.Page{}, invalid("html", "html is required")
	}
	if len(in.HTML) > maxPageHTML {
		return domain.Page{}, invalid("html", "html is too large")
	}
	title, description := strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		meta := extractPageMeta(in.HTML)
		if title == "" {
			title = meta.Title
		}
		if description == "" {
			description = meta.Description
		}
	}
	if title == "" {
		title = slug
	}
	page, err := a.store.UpsertPage(ctx, domain.Page{
		WebsiteID:   websiteID,
		TenantID:    id.TenantID,
		Slug:        slug,
		Title:       title,
		Description: description,
		HTML:        in.HTML,
	})
	if err != nil {
		return domain.Page{}, fmt.Errorf("save page: %w", err)
	}
	return page, nil
}

func (a *App) PublishWebsite(ctx context.Context, id domain.Identity, websiteID string, published bool) (domain.Website, error) {
	err := a.store.SetWebsitePublished(ctx, id.TenantID, websiteID, published)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Website{}, &NotFoundError{Resource: "website", ID: websiteID}
	}
	if err != nil {
		return domain.Website{}, fmt.Errorf("publish website: %w", err)
	}
	return a.GetWebsite(ctx, id, websiteID)
}

type pageMeta struct {
	Title       string
	Description string
	HasDocument bool
}

// extractPageMeta reads <title>, the description meta tag and the first
// <h1> (title fallback) from markup.
func extractPageMeta(markup string) pageMeta {
	var meta pageMeta
	var heading string
	z := html.NewTokenizer(strings.NewReader(markup))
	inTitle, inHeading := false, false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if meta.Title == "" {
				meta.Title = heading
			}
			return meta
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "html":
				meta.HasDocument = true
			case "title":
				inTitle = true
			case "h1":
				inHeading = heading == ""
			case "meta":
				var name, content string
				for _, attr := range tok.Attr {
					switch strings.ToLower(attr.Key) {
					case "name", "property":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if (name == "description" || name == "og:description") && meta.Description == "" {
					meta.Description = strings.TrimSpace(content)
				}
			}
		case html.EndTagToken:
			switch z.Token().Data {
			case "title":
				inTitle = false
			case "h1":
				inHeading = false
			}
		case html.TextToken:
			text := strings.TrimSpace(string(z.Text()))
			if inTitle && meta.Title == "" {
				meta.Title = text
			}
			if inHeading {
				heading = strings.TrimSpace(heading + " " + text)
			}
		}
	}
}

var pageShell = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{if .Description}}<meta name="description" content="{{.Description}}">
{{end}}</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderPublicPage returns the markup of a published page. Fragments are
// wrapped in a minimal document.
func (a *App) RenderPublicPage(ctx context.Context, subdomain, slug string) ([]byte, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	slug = strings.ToLower(strings.Trim(strings.TrimSpace(slug), "/"))
	if slug == "" {
		slug = "home"
	}
	page, ok, err := a.store.GetPublishedPage(ctx, subdomain, slug)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{Resource: "page", ID: subdomain + "/" + slug}
	}
	if extractPageMeta(page.HTML).HasDocument {
		return []byte(page.HTML), nil
	}
	var buf bytes.Buffer
	err = pageShell.Execute(&buf, struct {
		Title       string
		Description string
		Body        template.HTML
	}{page.Title, page.Description, template.HTML(page.HTML)})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}
