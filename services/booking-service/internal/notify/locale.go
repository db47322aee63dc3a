package notify

import (
	"strings"
	"time"

	"github.com/goodsign/monday"
)

const (
	LocaleES = "es"
	LocaleEN = "en"
)

const (
	layoutES = "Monday, 2 de January de 2006 a las 15:04"
	layoutEN = "Monday, January 2, 2006 at 15:04"
)

// NormalizeLocale maps tags such as "es-ES" onto a supported locale, defaulting to Spanish.
func NormalizeLocale(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if strings.HasPrefix(tag, LocaleEN) {
		return LocaleEN
	}
	return LocaleES
}

// dateLocale resolves a tag to a monday locale. Full tags ("es_MX", "en-GB")
// are used as given when monday knows them.
func dateLocale(tag string) monday.Locale {
	norm := strings.ReplaceAll(strings.TrimSpace(tag), "-", "_")
	for _, l := range monday.ListLocales() {
		if strings.EqualFold(string(l), norm) {
			return l
		}
	}
	if NormalizeLocale(tag) == LocaleEN {
		return monday.LocaleEnUS
	}
	return monday.LocaleEsES
}

// FormatDate renders t in loc the way the clinic's emails show appointment dates.
func FormatDate(t time.Time, locale string, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	layout := layoutES
	if NormalizeLocale(locale) == LocaleEN {
		layout = layoutEN
	}
	return monday.Format(t, layout, dateLocale(locale))
}
