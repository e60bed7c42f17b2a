package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recordPolicy captures applied session settings.
type recordPolicy struct {
	mu        sync.Mutex
	languages []string
	accepts   []string
	proxies   []Proxy
	proxyErr  error
}

func (p *recordPolicy) ApplySpellcheck(lang, accept string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.languages = append(p.languages, lang)
	p.accepts = append(p.accepts, accept)
	return nil
}

func (p *recordPolicy) ApplyProxy(proxy Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = append(p.proxies, proxy)
	return p.proxyErr
}

func (p *recordPolicy) lastProxy() Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proxies[len(p.proxies)-1]
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func tempFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "settings.json")
}

func TestSpellcheckLanguageRoundTrip(t *testing.T) {
	s := NewStore(StoreOptions{File: tempFile(t)})
	def := Defaults()

	got := s.Update(Patch{SpellcheckLanguage: strPtr("en-GB")})
	if got.SpellcheckLanguage != "en-GB" {
		t.Errorf("expected en-GB, got %q", got.SpellcheckLanguage)
	}
	// All other fields keep their defaults.
	if got.SearchMode != def.SearchMode || got.Proxy != def.Proxy ||
		got.ThirdPartyCookies != def.ThirdPartyCookies ||
		got.OpenSearchExternally != def.OpenSearchExternally {
		t.Errorf("unrelated fields changed: %+v", got)
	}
	if s.Get().SpellcheckLanguage != "en-GB" {
		t.Error("get after patch lost the value")
	}
}

func TestInvalidValuesKeepPrevious(t *testing.T) {
	s := NewStore(StoreOptions{File: tempFile(t)})
	s.Update(Patch{SearchMode: strPtr("query")})

	got := s.Update(Patch{
		SearchMode:         strPtr("shout"),
		SpellcheckLanguage: strPtr("not a language"),
		Proxy:              &ProxyPatch{Mode: strPtr("direct"), Port: intPtr(99999)},
	})
	if got.SearchMode != SearchQuery {
		t.Errorf("invalid search mode must keep previous, got %q", got.SearchMode)
	}
	if got.SpellcheckLanguage != Defaults().SpellcheckLanguage {
		t.Errorf("invalid language must keep previous, got %q", got.SpellcheckLanguage)
	}
	if got.Proxy.Mode != ProxySystem || got.Proxy.Port != 0 {
		t.Errorf("invalid proxy values must keep previous, got %+v", got.Proxy)
	}
}

func TestProxyMergedNotReplaced(t *testing.T) {
	s := NewStore(StoreOptions{File: tempFile(t)})
	s.Update(Patch{Proxy: &ProxyPatch{
		Mode: strPtr("manual"), Host: strPtr("127.0.0.1"), Port: intPtr(8080),
	}})

	got := s.Update(Patch{Proxy: &ProxyPatch{Port: intPtr(9090)}})
	if got.Proxy.Mode != ProxyManual || got.Proxy.Host != "127.0.0.1" || got.Proxy.Port != 9090 {
		t.Errorf("proxy patch must merge field by field, got %+v", got.Proxy)
	}
}

func TestPersistenceAcrossStores(t *testing.T) {
	file := tempFile(t)
	s := NewStore(StoreOptions{File: file})
	s.Update(Patch{
		ThirdPartyCookies:  boolPtr(true),
		SpellcheckLanguage: strPtr("de-DE"),
	})

	reopened := NewStore(StoreOptions{File: file})
	got := reopened.Get()
	if !got.ThirdPartyCookies || got.SpellcheckLanguage != "de-DE" {
		t.Errorf("document not persisted: %+v", got)
	}
}

func TestUnparsableFileFallsBackToDefaults(t *testing.T) {
	file := tempFile(t)
	if err := os.WriteFile(file, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(StoreOptions{File: file})
	if s.Get() != Defaults() {
		t.Errorf("expected defaults, got %+v", s.Get())
	}
}

func TestPolicyAppliedOnUpdate(t *testing.T) {
	policy := &recordPolicy{}
	s := NewStore(StoreOptions{File: tempFile(t), Policy: policy})

	s.Update(Patch{SpellcheckLanguage: strPtr("fr-FR")})

	policy.mu.Lock()
	lang := policy.languages[len(policy.languages)-1]
	accept := policy.accepts[len(policy.accepts)-1]
	policy.mu.Unlock()
	if lang != "fr-FR" {
		t.Errorf("spellcheck language not applied: %q", lang)
	}
	if accept != "fr-FR,fr;q=0.9" {
		t.Errorf("unexpected accept-language: %q", accept)
	}
}

func TestIncompleteManualProxyFallsBackToSystem(t *testing.T) {
	policy := &recordPolicy{}
	s := NewStore(StoreOptions{File: tempFile(t), Policy: policy})

	got := s.Update(Patch{Proxy: &ProxyPatch{Mode: strPtr("manual")}})
	if got.Proxy.Mode != ProxyManual {
		t.Fatalf("document keeps the requested mode, got %+v", got.Proxy)
	}
	if applied := policy.lastProxy(); applied.Mode != ProxySystem {
		t.Errorf("incomplete manual proxy must apply system, got %+v", applied)
	}
}

func TestOnChangeBroadcast(t *testing.T) {
	var got []Document
	s := NewStore(StoreOptions{
		File:     tempFile(t),
		OnChange: func(d Document) { got = append(got, d) },
	})

	s.Update(Patch{SearchMode: strPtr("query")})
	if len(got) != 1 || got[0].SearchMode != SearchQuery {
		t.Errorf("expected one broadcast with the new document, got %v", got)
	}
}

func TestWatchPicksUpExternalEdit(t *testing.T) {
	file := tempFile(t)
	changed := make(chan Document, 4)
	s := NewStore(StoreOptions{
		File:     file,
		OnChange: func(d Document) { changed <- d },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchErr := make(chan error, 1)
	go func() { watchErr <- s.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond) // let the watcher arm

	if err := os.WriteFile(file, []byte(`{"searchMode":"query"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-changed:
		if d.SearchMode != SearchQuery {
			t.Errorf("reload carried wrong document: %+v", d)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("external edit not observed")
	}

	cancel()
	if err := <-watchErr; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAcceptLanguageDerivation(t *testing.T) {
	cases := map[string]string{
		"en-GB": "en-GB,en;q=0.9",
		"de":    "de",
		"":      "",
	}
	for in, want := range cases {
		if got := AcceptLanguage(in); got != want {
			t.Errorf("AcceptLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
