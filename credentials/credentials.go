// Package credentials stores API keys in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// Keys found here only fill a key that no flag, environment variable or
// config file provided.
package credentials

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// Keyring service and account names.
const (
	DefaultService = "emlsync"

	// AccountCRM holds the CRM API key.
	AccountCRM = "crm-api-key"
	// AccountLLM holds the model endpoint API key.
	AccountLLM = "llm-api-key"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no key is stored for an account.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
	// ErrUnknownAccount is returned for account names other than the known ones.
	ErrUnknownAccount = errors.New("unknown credential account")
)

// Accounts lists the accounts the store manages.
var Accounts = []string{AccountCRM, AccountLLM}

// Store reads and writes keys in the system keyring.
type Store struct {
	mu      sync.Mutex
	service string
}

// NewStore creates a store under DefaultService.
func NewStore() *Store {
	return NewStoreWithService(DefaultService)
}

// NewStoreWithService creates a store under a custom keyring service name.
func NewStoreWithService(service string) *Store {
	return &Store{service: service}
}

// Get returns the key stored for account.
func (s *Store) Get(account string) (string, error) {
	if err := checkAccount(account); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := keyring.Get(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoCredentials
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return secret, nil
}

// Set stores key for account, replacing any previous key.
func (s *Store) Set(account, key string) error {
	if err := checkAccount(account); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(s.service, account, key); err != nil {
		return fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes the key for account.
func (s *Store) Delete(account string) error {
	if err := checkAccount(account); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := keyring.Delete(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNoCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Exists reports whether a key is stored for account.
func (s *Store) Exists(account string) bool {
	_, err := s.Get(account)
	return err == nil
}

// Lookup returns the stored key for account, or "" when none is stored or
// the keyring cannot be reached.
func (s *Store) Lookup(account string) string {
	key, err := s.Get(account)
	if err != nil {
		return ""
	}
	return key
}

// Description returns a human-readable name of the keyring backend.
func Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// ParseAccount maps a short name ("crm", "llm") or a full account name to
// the account.
func ParseAccount(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "crm", AccountCRM:
		return AccountCRM, nil
	case "llm", AccountLLM:
		return AccountLLM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAccount, name)
	}
}

func checkAccount(account string) error {
	for _, a := range Accounts {
		if a == account {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAccount, account)
}

// MaskCredential returns a masked version of the credential for display.
func MaskCredential(cred string) string {
	if len(cred) <= 8 {
		return strings.Repeat("*", len(cred))
	}
	return cred[:4] + strings.Repeat("*", len(cred)-8) + cred[len(cred)-4:]
}

// MaskAPIKey returns a masked API key showing only a short prefix.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:4] + strings.Repeat("*", 8) + "..."
}
