// Package state implements the Active-State Store: one small file per
// field (mode, active model, staged gateway config, comfy lease),
// grounded in the original control service's ensure_active_config,
// restore_active_files, and active_model helpers. Writes are whole-file
// replacements; the (config, model) pair is written config-first, then
// model, so a crash mid-pair always leaves the recoverable inconsistency
// the engine heals on next switch (or at startup reconciliation).
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zheng/gpuswitch/pkg/models"
)

const (
	configFile = "active.yml"
	modelFile  = "active.model"
	modeFile   = "active.mode"
	leaseFile  = "active.mode.lease_until"

	leaseTimeFormat = time.RFC3339
)

// Store is the file-backed Active-State Store.
type Store struct {
	configDir   string
	templateDir string
}

// New builds a Store rooted at configDir, resolving templates from
// templateDir.
func New(configDir, templateDir string) *Store {
	return &Store{configDir: configDir, templateDir: templateDir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.configDir, name)
}

// ReadMode returns the persisted mode, defaulting to ModeLLM when the
// file is absent, empty, or holds an unrecognised value.
func (s *Store) ReadMode() models.Mode {
	raw, err := os.ReadFile(s.path(modeFile))
	if err != nil {
		return models.ModeLLM
	}
	m := models.Mode(strings.TrimSpace(string(raw)))
	if !m.Valid() {
		return models.ModeLLM
	}
	return m
}

// WriteMode persists m. Writing anything other than ModeComfy removes
// the lease file, since a lease is only meaningful in comfy mode.
func (s *Store) WriteMode(m models.Mode) error {
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", s.configDir, err)
	}
	if err := os.WriteFile(s.path(modeFile), []byte(string(m)+"\n"), 0o644); err != nil {
		return fmt.Errorf("state: write mode: %w", err)
	}
	if m != models.ModeComfy {
		if err := s.ClearLease(); err != nil {
			return err
		}
	}
	return nil
}

// ReadActiveModel returns the persisted active model id, or "" when
// absent.
func (s *Store) ReadActiveModel() string {
	raw, err := os.ReadFile(s.path(modelFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// ReadConfig returns the current staged gateway config bytes, or nil
// when absent.
func (s *Store) ReadConfig() []byte {
	raw, err := os.ReadFile(s.path(configFile))
	if err != nil {
		return nil
	}
	return raw
}

// StageConfig copies templateName (resolved under templateDir) into the
// staged-config path and rewrites active_model as a pair: config first,
// then model.
func (s *Store) StageConfig(templateName, modelID string) error {
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", s.configDir, err)
	}

	tmpl, err := os.ReadFile(filepath.Join(s.templateDir, templateName))
	if err != nil {
		return fmt.Errorf("state: read template %s: %w", templateName, err)
	}

	if err := os.WriteFile(s.path(configFile), tmpl, 0o644); err != nil {
		return fmt.Errorf("state: write staged config: %w", err)
	}
	if err := os.WriteFile(s.path(modelFile), []byte(modelID+"\n"), 0o644); err != nil {
		return fmt.Errorf("state: write active model: %w", err)
	}
	return nil
}

// Restore writes back a previously-read (config, model) pair, in the
// same fixed order as StageConfig. A nil prevConfig or empty prevModel
// removes the corresponding file instead of writing it.
func (s *Store) Restore(prevConfig []byte, prevModel string) error {
	if prevConfig == nil {
		if err := removeIfExists(s.path(configFile)); err != nil {
			return fmt.Errorf("state: remove staged config: %w", err)
		}
	} else if err := os.WriteFile(s.path(configFile), prevConfig, 0o644); err != nil {
		return fmt.Errorf("state: restore staged config: %w", err)
	}

	if prevModel == "" {
		if err := removeIfExists(s.path(modelFile)); err != nil {
			return fmt.Errorf("state: remove active model: %w", err)
		}
	} else if err := os.WriteFile(s.path(modelFile), []byte(prevModel+"\n"), 0o644); err != nil {
		return fmt.Errorf("state: restore active model: %w", err)
	}

	return nil
}

// ReadLease returns the persisted lease deadline. A missing file or a
// parse failure is treated as an absent lease.
func (s *Store) ReadLease() (time.Time, bool) {
	raw, err := os.ReadFile(s.path(leaseFile))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(leaseTimeFormat, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLease persists a new lease deadline ttl from now and returns it.
func (s *Store) SetLease(ttl time.Duration) (time.Time, error) {
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return time.Time{}, fmt.Errorf("state: mkdir %s: %w", s.configDir, err)
	}
	expiry := time.Now().UTC().Add(ttl)
	if err := os.WriteFile(s.path(leaseFile), []byte(expiry.Format(leaseTimeFormat)+"\n"), 0o644); err != nil {
		return time.Time{}, fmt.Errorf("state: write lease: %w", err)
	}
	return expiry, nil
}

// ClearLease removes the lease file, if present.
func (s *Store) ClearLease() error {
	if err := removeIfExists(s.path(leaseFile)); err != nil {
		return fmt.Errorf("state: clear lease: %w", err)
	}
	return nil
}

// Reconcile is the startup-reconciliation pass (a supplemented feature
// resolving the spec's first open question): if active_config and
// active_model disagree about presence — one file exists, the other
// doesn't, the crash-mid-pair case — both are cleared rather than
// guessed at. Returns true if it healed an inconsistency.
func (s *Store) Reconcile() (bool, error) {
	_, configErr := os.Stat(s.path(configFile))
	_, modelErr := os.Stat(s.path(modelFile))
	configExists := configErr == nil
	modelExists := modelErr == nil

	if configExists == modelExists {
		return false, nil
	}

	if err := removeIfExists(s.path(configFile)); err != nil {
		return false, fmt.Errorf("state: reconcile: remove config: %w", err)
	}
	if err := removeIfExists(s.path(modelFile)); err != nil {
		return false, fmt.Errorf("state: reconcile: remove model: %w", err)
	}
	return true, nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
