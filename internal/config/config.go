// Package config holds process-wide settings loaded once at startup.
//
// Lazily-populated global caches are racy on first access, so everything is
// resolved once in Load() and passed explicitly to the components that need
// it.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Defaults used when the corresponding environment variable is unset.
const (
	DefaultLocale         = "en"
	DefaultUsernameMaxLen = 60
	DefaultOfficialDomain = "officials.example.org"
)

// Settings is the system configuration store: supported locales, the default
// locale, the official email domain, and the username length limit.
//
// Settings is immutable after Load() — components receive it by value and
// never write to it, so it is safe to share across request goroutines.
type Settings struct {
	DefaultLocale       string   // locale applied when an account has none
	SupportedLocales    []string // accounts may only use one of these
	OfficialEmailDomain string   // e.g. "officials.example.org"
	UsernameMaxLength   int      // schema column limit, default 60
}

// Load reads settings from the environment, applying defaults for anything
// unset.
//
// Environment variables:
//
//	DEFAULT_LOCALE        e.g. "en"
//	SUPPORTED_LOCALES     comma-separated, e.g. "en,es,fr"
//	OFFICIAL_EMAIL_DOMAIN e.g. "madrid.es"
//	USERNAME_MAX_LENGTH   integer, e.g. "60"
func Load() Settings {
	s := Settings{
		DefaultLocale:       DefaultLocale,
		SupportedLocales:    []string{"en", "es"},
		OfficialEmailDomain: DefaultOfficialDomain,
		UsernameMaxLength:   DefaultUsernameMaxLen,
	}

	if v := os.Getenv("DEFAULT_LOCALE"); v != "" {
		s.DefaultLocale = v
	}
	if v := os.Getenv("SUPPORTED_LOCALES"); v != "" {
		var locales []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				locales = append(locales, l)
			}
		}
		if len(locales) > 0 {
			s.SupportedLocales = locales
		}
	}
	if v := os.Getenv("OFFICIAL_EMAIL_DOMAIN"); v != "" {
		s.OfficialEmailDomain = v
	}
	if v := os.Getenv("USERNAME_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.UsernameMaxLength = n
		}
	}

	// The default locale must always be usable, even if the operator forgot
	// to include it in SUPPORTED_LOCALES.
	if !s.LocaleSupported(s.DefaultLocale) {
		s.SupportedLocales = append(s.SupportedLocales, s.DefaultLocale)
	}

	return s
}

// LocaleSupported reports whether the given locale is in the supported set.
func (s Settings) LocaleSupported(locale string) bool {
	for _, l := range s.SupportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}
