package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Catalog localizes notification labels.
type Catalog struct {
	bundle        *goi18n.Bundle
	defaultLocale string
}

// New loads all embedded locale files.
func New(defaultLocale string) (*Catalog, error) {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
	}
	return &Catalog{bundle: bundle, defaultLocale: defaultLocale}, nil
}

// T translates id for locale, falling back to the default locale and then to
// the id itself.
func (c *Catalog) T(locale, id string, data map[string]any) string {
	if c == nil {
		return id
	}
	loc := goi18n.NewLocalizer(c.bundle, locale, c.defaultLocale)
	msg, err := loc.Localize(&goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return msg
}

// SourceLabel returns the display label of a notification source.
func (c *Catalog) SourceLabel(locale, source string) string {
	return c.T(locale, "source."+source, nil)
}
