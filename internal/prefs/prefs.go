// Package prefs is the client-local persisted state: active budget id and
// join code, display currency, theme and the session token. It is loaded
// once at startup, saved explicitly on change, and wiped on sign-out.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultCurrency = "PLN"
	DefaultTheme    = "dark"
)

type Prefs struct {
	BudgetID     string `json:"budgetId,omitempty"`
	BudgetCode   string `json:"budgetCode,omitempty"`
	Currency     string `json:"currency"`
	Theme        string `json:"theme"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// File persists Prefs as JSON under a data directory.
type File struct {
	path string
}

func NewFile(dataDir string) *File {
	return &File{path: filepath.Join(dataDir, "prefs.json")}
}

// Load reads the persisted state, returning defaults when nothing has been
// saved yet.
func (f *File) Load() (Prefs, error) {
	p := Prefs{Currency: DefaultCurrency, Theme: DefaultTheme}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read prefs: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Prefs{Currency: DefaultCurrency, Theme: DefaultTheme}, fmt.Errorf("parse prefs: %w", err)
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.Theme == "" {
		p.Theme = DefaultTheme
	}
	return p, nil
}

// Save writes the state to a temporary file and renames it into place,
// so a crash mid-write never leaves a torn prefs file behind.
func (f *File) Save(p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create prefs directory: %w", err)
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// Clear removes the persisted state entirely; called on sign-out.
func (f *File) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
