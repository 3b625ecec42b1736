package provider

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// AppType names a CLI tool whose providers are managed
type AppType string

const (
	AppClaude AppType = "claude"
	AppCodex  AppType = "codex"
	AppGemini AppType = "gemini"
)

// AppTypes lists the managed app types in processing order
func AppTypes() []AppType {
	return []AppType{AppClaude, AppCodex, AppGemini}
}

// Provider is one provider entry. SettingsConfig and Meta are carried through untouched.
type Provider struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	SettingsConfig json.RawMessage `json:"settingsConfig"`
	WebsiteURL     *string         `json:"websiteUrl,omitempty"`
	Category       *string         `json:"category,omitempty"`
	CreatedAt      *int64          `json:"createdAt,omitempty"`
	SortIndex      *int            `json:"sortIndex,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

// Providers maps provider id to provider in insertion order
type Providers = orderedmap.OrderedMap[string, Provider]

// NewProviders builds an ordered provider map from list order
func NewProviders(list ...Provider) *Providers {
	m := orderedmap.New[string, Provider]()
	for _, p := range list {
		m.Set(p.ID, p)
	}
	return m
}

// AppSnapshot is the provider set of one app type
type AppSnapshot struct {
	CurrentID *string    `json:"currentId,omitempty"`
	Providers *Providers `json:"providers"`
}

// List returns the providers in map order
func (s *AppSnapshot) List() []Provider {
	if s == nil || s.Providers == nil {
		return nil
	}
	out := make([]Provider, 0, s.Providers.Len())
	for pair := s.Providers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// DeviceSnapshot is the full provider state of a device. Absent app types are nil.
type DeviceSnapshot struct {
	Claude *AppSnapshot `json:"claude,omitempty"`
	Codex  *AppSnapshot `json:"codex,omitempty"`
	Gemini *AppSnapshot `json:"gemini,omitempty"`
}

// Get returns the snapshot of app, nil when absent
func (d *DeviceSnapshot) Get(app AppType) *AppSnapshot {
	switch app {
	case AppClaude:
		return d.Claude
	case AppCodex:
		return d.Codex
	case AppGemini:
		return d.Gemini
	}
	return nil
}

// Set stores the snapshot of app
func (d *DeviceSnapshot) Set(app AppType, s *AppSnapshot) {
	switch app {
	case AppClaude:
		d.Claude = s
	case AppCodex:
		d.Codex = s
	case AppGemini:
		d.Gemini = s
	}
}
