package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go_cfgsync/agent/store"

	"github.com/denisbrodbeck/machineid"
)

// ErrFingerprint marks a failure to read the machine's hardware fingerprint
var ErrFingerprint = errors.New("hardware fingerprint unavailable")

// FingerprintReader reads a stable raw machine identifier
type FingerprintReader interface {
	Fingerprint() (string, error)
}

// MachineID reads the OS machine id (/etc/machine-id, IOPlatformUUID, MachineGuid)
type MachineID struct{}

// Fingerprint implements FingerprintReader
func (MachineID) Fingerprint() (string, error) {
	return machineid.ID()
}

// SettingsStore is the part of the settings KV the identity needs
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Identity derives and persists the device id
type Identity struct {
	settings SettingsStore
	reader   FingerprintReader
}

// New creates an Identity
func New(settings SettingsStore, reader FingerprintReader) *Identity {
	return &Identity{settings: settings, reader: reader}
}

// GetOrCreate returns the stored device id. On first use it hashes the machine fingerprint
// (SHA-256, lowercase hex) and stores the result; the stored value is never rewritten.
func (i *Identity) GetOrCreate(ctx context.Context) (string, error) {
	existing, ok, err := i.settings.Get(ctx, store.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && strings.TrimSpace(existing) != "" {
		return existing, nil
	}

	raw, err := i.reader.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFingerprint, err)
	}

	id := Hash(raw)
	if err := i.settings.Set(ctx, store.KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Hash is the device id derived from a raw fingerprint
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
