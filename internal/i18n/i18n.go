// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// Tag returns the language tag for loc. An empty or undetermined locale falls back to the locale of
// the environment, and to English if none can be detected.
func Tag(loc string) language.Tag {
	tag := language.Make(loc)
	if tag != language.Und {
		return tag
	}
	tag, err := locale.Detect()
	if err != nil || tag == language.Und {
		return language.English
	}
	return tag
}

// New returns a localizer for loc backed by the embedded catalogs.
func New(loc string) (*spreak.Localizer, error) {
	tag := Tag(loc)
	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs(spreak.NoDomain, localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}
