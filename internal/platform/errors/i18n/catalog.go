// Package i18n provides localized user-facing messages for error codes.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// Code is a machine-readable error code (duplicated from the errors package
// to avoid an import cycle).
type Code = string

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[Code]string

	mu       sync.Mutex
	compiled map[Code]*template.Template
}

// supported lists the locales with shipped catalogs; the first entry is the
// fallback.
var supported = []language.Tag{
	language.AmericanEnglish,
}

var matcher = language.NewMatcher(supported)

var catalogsByLocale = map[string]*Catalog{
	"en-US": {locale: "en-US", messages: enUSMessages},
}

// GetCatalog returns the catalog best matching the given locale.
// Falls back to en-US when the locale is unknown or empty.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		return catalogsByLocale["en-US"]
	}
	tag, _ := language.MatchStrings(matcher, requested)
	resolved := tag.String()
	if c, ok := catalogsByLocale[resolved]; ok {
		return c
	}
	return catalogsByLocale["en-US"]
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template for code with the given metadata.
// Falls back to the code itself when no template exists or rendering fails.
// Templates are always executed, even with nil metadata, so that variables
// without values render as empty strings.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	raw, ok := c.messages[code]
	if !ok {
		return code
	}

	tmpl, err := c.compile(code, raw)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, metadata); err != nil {
		return code
	}
	return buf.String()
}

func (c *Catalog) compile(code Code, raw string) (*template.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compiled == nil {
		c.compiled = make(map[Code]*template.Template)
	}
	if tmpl, ok := c.compiled[code]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New(code).Option("missingkey=zero").Parse(raw)
	if err != nil {
		return nil, err
	}
	c.compiled[code] = tmpl
	return tmpl, nil
}
