package domain

import "time"

// PressRelease is the read-only projection of the content consumed by the pipeline.
type PressRelease struct {
	ID              string
	Title           string
	HTMLBody        string
	PublicationDate time.Time
	CreatorName     string
	Themes          []string
	Sources         []Source
}

// Source is a contact person listed at the bottom of a press release.
type Source struct {
	FullName     string
	Function     string
	Telephone    string
	Mobile       string
	Email        string
	Organization string
}

// UniqueThemes returns the themes without duplicates, keeping first-seen order.
func (p PressRelease) UniqueThemes() []string {
	return Dedupe(p.Themes)
}

// Dedupe drops repeated and empty values, keeping first-seen order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// RenderedContent is the mail body produced for one press release.
type RenderedContent struct {
	Subject     string
	Title       string
	PreviewText string
	HTML        string
}
