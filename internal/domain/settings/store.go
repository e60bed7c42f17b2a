package settings

import (
	"os"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
)

// Policy applies the session-affecting subset of the document to the
// live browsing session.
type Policy interface {
	// ApplySpellcheck sets the session spellcheck language and the
	// derived Accept-Language header.
	ApplySpellcheck(language, acceptLanguage string) error
	// ApplyProxy configures the session proxy.
	ApplyProxy(p Proxy) error
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// File is the on-disk settings document path.
	File   string
	Policy Policy
	// OnChange fires after every accepted update with the full document.
	OnChange func(Document)
	Logger   *logging.Logger
}

// Store holds the authoritative in-memory settings document. Disk is a
// best-effort mirror; persistence failures are logged and the running
// session keeps the in-memory state.
type Store struct {
	file     string
	policy   Policy
	onChange func(Document)
	logger   *logging.Logger

	mu  sync.Mutex
	doc Document
}

// NewStore loads the settings file (or falls back to defaults on
// absence or parse failure) and applies the session policy once.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		file:     opts.File,
		policy:   opts.Policy,
		onChange: opts.OnChange,
		logger:   logger.Component("settings"),
		doc:      Defaults(),
	}
	s.doc = s.loadFile()
	s.applyPolicy(s.doc)
	return s
}

// Get returns the current document.
func (s *Store) Get() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Update merges the patch, persists, reapplies the session policy, and
// returns the resulting document. Invalid patch values are discarded
// in favor of the previous ones.
func (s *Store) Update(p Patch) Document {
	s.mu.Lock()
	s.doc = merge(s.doc, p)
	doc := s.doc
	s.mu.Unlock()

	s.persist(doc)
	s.applyPolicy(doc)
	if s.onChange != nil {
		s.onChange(doc)
	}
	return doc
}

// Reload re-reads the file and adopts its contents when they differ
// from the in-memory document. Used by the file watcher.
func (s *Store) Reload() {
	loaded := s.loadFile()

	s.mu.Lock()
	changed := loaded != s.doc
	if changed {
		s.doc = loaded
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Info("settings reloaded from disk")
	s.applyPolicy(loaded)
	if s.onChange != nil {
		s.onChange(loaded)
	}
}

func (s *Store) loadFile() Document {
	doc := Defaults()
	data, err := os.ReadFile(s.file)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read settings file", zap.Error(err))
		}
		return doc
	}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("settings file unparsable, using defaults", zap.Error(err))
		return Defaults()
	}
	return normalize(doc)
}

func (s *Store) persist(doc Document) {
	data, err := sonic.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode settings", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.file, data, 0o644); err != nil {
		s.logger.Warn("failed to persist settings", zap.Error(err))
	}
}

// applyPolicy pushes the session-affecting subset to the live session.
// A manual proxy with incomplete host/port falls back to the system
// proxy. Failures are logged, never raised.
func (s *Store) applyPolicy(doc Document) {
	if s.policy == nil {
		return
	}
	if err := s.policy.ApplySpellcheck(doc.SpellcheckLanguage, AcceptLanguage(doc.SpellcheckLanguage)); err != nil {
		s.logger.Warn("failed to apply spellcheck language", zap.Error(err))
	}

	proxy := doc.Proxy
	if proxy.Mode == ProxyManual && !proxy.Complete() {
		proxy = Proxy{Mode: ProxySystem}
	}
	if err := s.policy.ApplyProxy(proxy); err != nil {
		s.logger.Warn("failed to apply proxy, falling back to system", zap.Error(err))
		if proxy.Mode != ProxySystem {
			if ferr := s.policy.ApplyProxy(Proxy{Mode: ProxySystem}); ferr != nil {
				s.logger.Warn("system proxy fallback failed", zap.Error(ferr))
			}
		}
	}
}
