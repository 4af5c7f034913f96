package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/gonka-ai/inference-gateway/internal/log"
)

// DevBootstrapPrefix marks the development key minted when the store starts
// empty. The suffix is 48 zero characters, matching the original prototype's
// convenience bootstrap so local runs never start with zero valid keys.
const DevBootstrapPrefix = "gk-dev-"

const devBootstrapKey = DevBootstrapPrefix + "000000000000000000000000000000000000000000000000"

type keysFile struct {
	Keys []Principal `json:"keys"`
}

// Store is the Credential Store: an in-memory index of API keys, persisted
// to a JSON file with atomic rename-on-write durability.
type Store struct {
	mu       sync.RWMutex
	keys     map[string]Principal
	filePath string
}

// NewStore loads keys from filePath if it exists, otherwise starts empty.
// An empty filePath disables persistence (in-memory only, for tests).
func NewStore(filePath string) (*Store, error) {
	s := &Store{
		keys:     make(map[string]Principal),
		filePath: filePath,
	}
	if filePath == "" {
		return s, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	var kf keysFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	for _, p := range kf.Keys {
		s.keys[p.Key] = p
	}
	return s, nil
}

// BootstrapIfEmpty mints a single development key with generous limits when
// the store has no keys at all, and persists it. It returns the minted key
// (empty string if the store was already non-empty).
func (s *Store) BootstrapIfEmpty() (string, error) {
	s.mu.Lock()
	if len(s.keys) > 0 {
		s.mu.Unlock()
		return "", nil
	}
	p := Principal{
		Key:       devBootstrapKey,
		Owner:     "dev",
		Tier:      DefaultTier,
		RPMLimit:  6000,
		TPMLimit:  10_000_000,
		Active:    true,
		CreatedAt: time.Now(),
	}
	s.keys[p.Key] = p
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return "", err
	}
	log.WithComponent("auth").Warn().
		Str("masked_key", Mask(p.Key)).
		Msg("no API keys configured; minted development bootstrap key")
	return p.Key, nil
}

// Add registers a new key with the given owner/tier/limits and persists the store.
func (s *Store) Add(owner, tier string, rpmLimit, tpmLimit int) (Principal, error) {
	if tier == "" {
		tier = DefaultTier
	}
	key, err := generateKey()
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		Key:       key,
		Owner:     owner,
		Tier:      tier,
		RPMLimit:  rpmLimit,
		TPMLimit:  tpmLimit,
		Active:    true,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.keys[p.Key] = p
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Revoke deactivates a key. Returns false if the key was not found.
func (s *Store) Revoke(key string) (bool, error) {
	s.mu.Lock()
	p, ok := s.keys[key]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	p.Active = false
	s.keys[key] = p
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// Validate returns the Principal for key if it exists and is active.
func (s *Store) Validate(key string) (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.keys[key]
	if !ok || !p.Active {
		return Principal{}, false
	}
	return p, true
}

// List returns every principal with its key masked, safe for an admin surface.
func (s *Store) List() []Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Principal, 0, len(s.keys))
	for _, p := range s.keys {
		p.Key = Mask(p.Key)
		out = append(out, p)
	}
	return out
}

// Count returns the number of registered keys (active or not).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *Store) persist() error {
	if s.filePath == "" {
		return nil
	}
	s.mu.RLock()
	kf := keysFile{Keys: make([]Principal, 0, len(s.keys))}
	for _, p := range s.keys {
		kf.Keys = append(kf.Keys, p)
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create keys dir: %w", err)
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keys file: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.filePath)
	if err != nil {
		return fmt.Errorf("create pending keys file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write keys file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace keys file: %w", err)
	}
	return nil
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "gk-" + hex.EncodeToString(buf), nil
}
