package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/format"
	"MailchimpPublisher/internal/ports"
)

const maxPreviewRunes = 150

//go:embed templates/newsletter.html.tmpl
var templateFS embed.FS

// Options selects which creators are served and with which templates.
type Options struct {
	// Creators restricts the embedded template to these creators. Empty serves everyone.
	Creators []string
	// Templates maps a creator to a template file that overrides the embedded one.
	Templates map[string]string
	Location  *time.Location
	Logger    *slog.Logger
}

// Renderer produces the newsletter body of a press release.
type Renderer struct {
	registry *Registry
	location *time.Location
	logger   *slog.Logger
}

var _ ports.Renderer = (*Renderer)(nil)

// NewRenderer parses the embedded template and any configured overrides.
func NewRenderer(opts Options) (*Renderer, error) {
	base, err := template.ParseFS(templateFS, "templates/newsletter.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse embedded template: %w", err)
	}

	var registry *Registry
	if len(opts.Creators) == 0 {
		registry = NewRegistry(base)
	} else {
		registry = NewRegistry(nil)
		for _, creator := range opts.Creators {
			registry.Register(creator, base)
		}
	}

	for creator, path := range opts.Templates {
		tpl, err := template.ParseFiles(path)
		if err != nil {
			return nil, fmt.Errorf("parse template for %s: %w", creator, err)
		}
		registry.Register(creator, tpl)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{registry: registry, location: loc, logger: logger}, nil
}

type sourceView struct {
	FullName     string
	Function     string
	Organization string
	Telephone    string
	Mobile       string
	Email        string
}

type newsletterView struct {
	Title   string
	Date    string
	Body    template.HTML
	Sources []sourceView
}

// Render sanitizes the body and executes the creator's template.
func (r *Renderer) Render(_ context.Context, pr domain.PressRelease) (domain.RenderedContent, error) {
	tpl, err := r.registry.Resolve(pr.CreatorName)
	if err != nil {
		return domain.RenderedContent{}, fmt.Errorf("%w: %w", domain.ErrRender, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pr.HTMLBody))
	if err != nil {
		return domain.RenderedContent{}, fmt.Errorf("%w: parse body: %w", domain.ErrRender, err)
	}
	body, err := sanitize(doc)
	if err != nil {
		return domain.RenderedContent{}, fmt.Errorf("%w: sanitize body: %w", domain.ErrRender, err)
	}

	date := format.DutchDate(pr.PublicationDate, r.location)
	view := newsletterView{
		Title: pr.Title,
		Date:  date,
		Body:  template.HTML(body),
	}
	for _, s := range pr.Sources {
		view.Sources = append(view.Sources, sourceView{
			FullName:     s.FullName,
			Function:     s.Function,
			Organization: s.Organization,
			Telephone:    format.Telephone(s.Telephone),
			Mobile:       format.Telephone(s.Mobile),
			Email:        format.Email(s.Email),
		})
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, view); err != nil {
		return domain.RenderedContent{}, fmt.Errorf("%w: execute template: %w", domain.ErrRender, err)
	}

	r.logger.Debug("press release rendered", "press_release", pr.ID, "bytes", buf.Len())
	return domain.RenderedContent{
		Subject:     pr.Title,
		Title:       fmt.Sprintf("%s (%s)", pr.Title, date),
		PreviewText: previewText(doc),
		HTML:        buf.String(),
	}, nil
}

// sanitize drops active content and returns the inner HTML of the body.
func sanitize(doc *goquery.Document) (string, error) {
	doc.Find("script, style, iframe").Remove()
	return doc.Find("body").Html()
}

// previewText is the first non-empty paragraph, or the whole text when there are no paragraphs.
func previewText(doc *goquery.Document) string {
	var text string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = collapse(s.Text())
		return text == ""
	})
	if text == "" {
		text = collapse(doc.Find("body").Text())
	}

	runes := []rune(text)
	if len(runes) > maxPreviewRunes {
		return strings.TrimSpace(string(runes[:maxPreviewRunes-1])) + "…"
	}
	return text
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
