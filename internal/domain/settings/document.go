// Package settings owns the persisted settings document and reapplies
// the session-affecting subset (proxy, spellcheck language) on change.
package settings

import "regexp"

// SearchMode selects how omnibox input is interpreted.
type SearchMode string

const (
	SearchAuto  SearchMode = "auto"
	SearchQuery SearchMode = "query"
)

// ProxyMode selects the proxy source for the browsing session.
type ProxyMode string

const (
	ProxySystem ProxyMode = "system"
	ProxyManual ProxyMode = "manual"
)

// Proxy holds the proxy configuration.
type Proxy struct {
	Mode ProxyMode `json:"mode"`
	Host string    `json:"host,omitempty"`
	Port int       `json:"port,omitempty"`
}

// Complete reports whether manual settings are usable.
func (p Proxy) Complete() bool {
	return p.Host != "" && p.Port > 0 && p.Port < 65536
}

// Document is the full settings document persisted to disk.
type Document struct {
	ThirdPartyCookies    bool       `json:"thirdPartyCookies"`
	SearchMode           SearchMode `json:"searchMode"`
	SpellcheckLanguage   string     `json:"spellcheckLanguage"`
	Proxy                Proxy      `json:"proxy"`
	OpenSearchExternally bool       `json:"openSearchExternally"`
}

// Defaults returns the built-in settings document.
func Defaults() Document {
	return Document{
		ThirdPartyCookies:    false,
		SearchMode:           SearchAuto,
		SpellcheckLanguage:   "en-US",
		Proxy:                Proxy{Mode: ProxySystem},
		OpenSearchExternally: false,
	}
}

// Patch is a shallow partial update. Nil fields keep their previous
// value; the nested proxy object is merged field by field, never
// replaced wholesale.
type Patch struct {
	ThirdPartyCookies    *bool       `json:"thirdPartyCookies,omitempty"`
	SearchMode           *string     `json:"searchMode,omitempty"`
	SpellcheckLanguage   *string     `json:"spellcheckLanguage,omitempty"`
	Proxy                *ProxyPatch `json:"proxy,omitempty"`
	OpenSearchExternally *bool       `json:"openSearchExternally,omitempty"`
}

// ProxyPatch is a partial proxy update.
type ProxyPatch struct {
	Mode *string `json:"mode,omitempty"`
	Host *string `json:"host,omitempty"`
	Port *int    `json:"port,omitempty"`
}

var languageTag = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z]{2,4})?$`)

// merge applies the patch onto doc, discarding invalid values in favor
// of the previous ones.
func merge(doc Document, p Patch) Document {
	if p.ThirdPartyCookies != nil {
		doc.ThirdPartyCookies = *p.ThirdPartyCookies
	}
	if p.SearchMode != nil {
		switch SearchMode(*p.SearchMode) {
		case SearchAuto, SearchQuery:
			doc.SearchMode = SearchMode(*p.SearchMode)
		}
	}
	if p.SpellcheckLanguage != nil && languageTag.MatchString(*p.SpellcheckLanguage) {
		doc.SpellcheckLanguage = *p.SpellcheckLanguage
	}
	if p.Proxy != nil {
		if p.Proxy.Mode != nil {
			switch ProxyMode(*p.Proxy.Mode) {
			case ProxySystem, ProxyManual:
				doc.Proxy.Mode = ProxyMode(*p.Proxy.Mode)
			}
		}
		if p.Proxy.Host != nil {
			doc.Proxy.Host = *p.Proxy.Host
		}
		if p.Proxy.Port != nil && *p.Proxy.Port > 0 && *p.Proxy.Port < 65536 {
			doc.Proxy.Port = *p.Proxy.Port
		}
	}
	if p.OpenSearchExternally != nil {
		doc.OpenSearchExternally = *p.OpenSearchExternally
	}
	return doc
}

// normalize repairs a document loaded from disk, replacing unknown
// enum values and malformed fields with defaults.
func normalize(doc Document) Document {
	def := Defaults()
	switch doc.SearchMode {
	case SearchAuto, SearchQuery:
	default:
		doc.SearchMode = def.SearchMode
	}
	switch doc.Proxy.Mode {
	case ProxySystem, ProxyManual:
	default:
		doc.Proxy.Mode = def.Proxy.Mode
	}
	if !languageTag.MatchString(doc.SpellcheckLanguage) {
		doc.SpellcheckLanguage = def.SpellcheckLanguage
	}
	if doc.Proxy.Port < 0 || doc.Proxy.Port > 65535 {
		doc.Proxy.Port = 0
	}
	return doc
}

// AcceptLanguage derives the session Accept-Language header value from
// the spellcheck language, listing the base language as fallback.
func AcceptLanguage(lang string) string {
	if lang == "" {
		return ""
	}
	base := lang
	for i := 0; i < len(lang); i++ {
		if lang[i] == '-' {
			base = lang[:i]
			break
		}
	}
	if base == lang {
		return lang
	}
	return lang + "," + base + ";q=0.9"
}
