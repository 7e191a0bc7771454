package locales

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/chatstats/core/logger"
)

//go:embed files/*.yaml
var localeFS embed.FS

// Catalog renders message templates per locale.
type Catalog struct {
	bundle     *i18n.Bundle
	fallback   Locale
	localizers map[Locale]*i18n.Localizer
}

// NewCatalog loads the embedded locale files and checks that every message
// id exists in every supported locale.
func NewCatalog(fallback Locale) (*Catalog, error) {
	if _, ok := Parse(string(fallback)); !ok {
		return nil, fmt.Errorf("locales: unsupported fallback %q", fallback)
	}

	bundle := i18n.NewBundle(fallback.Tag())
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := fs.ReadDir(localeFS, "files")
	if err != nil {
		return nil, fmt.Errorf("locales: read embedded files: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, "files/"+e.Name()); err != nil {
			return nil, fmt.Errorf("locales: load %s: %w", e.Name(), err)
		}
		loaded++
	}
	if loaded == 0 {
		return nil, errors.New("locales: no message files embedded")
	}

	c := &Catalog{
		bundle:     bundle,
		fallback:   fallback,
		localizers: make(map[Locale]*i18n.Localizer, len(supported)),
	}
	for _, l := range supported {
		c.localizers[l] = i18n.NewLocalizer(bundle, string(l))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger.LogEvent(context.Background(), logger.Component("locales"), slog.LevelInfo, "load",
		slog.Int("files", loaded),
		slog.Int("messages", len(allMessages)),
		slog.String("fallback", string(fallback)),
	)
	return c, nil
}

// Validate reports every message id missing from a locale. A message
// resolved through the fallback language counts as missing.
func (c *Catalog) Validate() error {
	var errs []error
	for _, l := range supported {
		loc := c.localizers[l]
		for _, id := range allMessages {
			_, tag, err := loc.LocalizeWithTag(&i18n.LocalizeConfig{MessageID: string(id)})
			if err != nil {
				errs = append(errs, fmt.Errorf("locales: %s/%s: %w", l, id, err))
				continue
			}
			if base, _ := tag.Base(); base.String() != string(l) {
				errs = append(errs, fmt.Errorf("locales: %s/%s: resolved via %s", l, id, tag))
			}
		}
	}
	return errors.Join(errs...)
}

// Fallback is the locale used for unknown or unsupported languages.
func (c *Catalog) Fallback() Locale {
	return c.fallback
}

// Text renders id in loc with the optional template data.
func (c *Catalog) Text(loc Locale, id MessageID, data map[string]any) string {
	lz, ok := c.localizers[loc]
	if !ok {
		lz = c.localizers[c.fallback]
	}
	out, err := lz.Localize(&i18n.LocalizeConfig{
		MessageID:    string(id),
		TemplateData: data,
	})
	if err != nil {
		logger.L.Warn("localize failed",
			slog.String("component", "locales"),
			slog.String("event", "localize"),
			slog.String("locale", string(loc)),
			slog.String("message_id", string(id)),
			slog.String("err", err.Error()),
		)
		return string(id)
	}
	return out
}
