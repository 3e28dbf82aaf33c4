// Package i18n renders broker error codes as localized user messages.
package i18n

import (
	"strings"
	"text/template"

	"golang.org/x/text/language"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en-US"

// Code mirrors errors.Code; the errors package imports this one.
type Code = string

// Catalog holds the message templates of one locale, parsed once.
type Catalog struct {
	locale    string
	templates map[Code]*template.Template
	raw       map[Code]string
}

// NewCatalog parses messages for locale. A message that is not a valid
// template is kept and rendered verbatim.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	c := &Catalog{
		locale:    locale,
		templates: make(map[Code]*template.Template, len(messages)),
		raw:       make(map[Code]string, len(messages)),
	}
	for code, text := range messages {
		c.raw[code] = text
		tmpl, err := template.New(code).Option("missingkey=zero").Parse(text)
		if err != nil {
			continue
		}
		c.templates[code] = tmpl
	}
	return c
}

// Locale returns the BCP 47 tag of the catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message for code with metadata as template data.
// Unknown codes render as the code itself; missing keys render empty.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	text, ok := c.raw[code]
	if !ok {
		return code
	}
	tmpl, ok := c.templates[code]
	if !ok {
		return text
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, metadata); err != nil {
		return text
	}
	return b.String()
}

var (
	catalogs = []*Catalog{
		NewCatalog(BaseLocale, enUSMessages),
		NewCatalog("pt-BR", ptBRMessages),
	}
	// The base locale is first so the matcher falls back to it.
	matcher = language.NewMatcher([]language.Tag{
		language.MustParse(BaseLocale),
		language.MustParse("pt-BR"),
	})
)

// GetCatalog resolves locale to a catalog. locale may be a single tag or
// a whole Accept-Language value; anything unmatched gets the base catalog.
func GetCatalog(locale string) *Catalog {
	locale = strings.TrimSpace(locale)
	for _, c := range catalogs {
		if strings.EqualFold(c.locale, locale) {
			return c
		}
	}
	if locale == "" {
		return catalogs[0]
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return catalogs[0]
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return catalogs[0]
	}
	return catalogs[index]
}
