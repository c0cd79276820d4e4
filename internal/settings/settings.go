// Package settings resolves runtime partner settings. Values persisted by operators override
// the defaults taken from the environment.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

const (
	KeyCardPartnerID  = "card_partner_id"
	KeyCardPartnerKey = "card_partner_key"
	KeyCardPartnerURL = "card_partner_url"
)

const defaultCardPartnerURL = "https://thesieure.com/chargingws/v2"

// ErrUnknownKey is returned when writing a key the service does not understand.
var ErrUnknownKey = errors.New("unknown setting key")

var knownKeys = map[string]struct{}{
	KeyCardPartnerID:  {},
	KeyCardPartnerKey: {},
	KeyCardPartnerURL: {},
}

// Store persists operator overrides.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Lookup answers setting reads at call time so partner credentials can rotate without a
// restart.
type Lookup struct {
	store    Store
	defaults *viper.Viper
}

// NewLookup layers the override store over viper defaults bound to the environment
// (CARD_PARTNER_ID, CARD_PARTNER_KEY, CARD_PARTNER_URL).
func NewLookup(store Store) *Lookup {
	v := viper.New()
	v.SetDefault(KeyCardPartnerURL, defaultCardPartnerURL)
	v.SetDefault(KeyCardPartnerID, "")
	v.SetDefault(KeyCardPartnerKey, "")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &Lookup{store: store, defaults: v}
}

// Get returns the override for key when present, otherwise the environment default.
func (l *Lookup) Get(ctx context.Context, key string) (string, error) {
	if l.store != nil {
		v, ok, err := l.store.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("settings %s: %w", key, err)
		}
		if ok {
			return v, nil
		}
	}
	return l.defaults.GetString(key), nil
}

// Set persists an override.
func (l *Lookup) Set(ctx context.Context, key, value string) error {
	if _, ok := knownKeys[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if l.store == nil {
		return fmt.Errorf("settings store not configured")
	}
	return l.store.Put(ctx, key, strings.TrimSpace(value))
}

type memoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore keeps overrides in process memory.
func NewMemoryStore() Store {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// PostgresStore reads overrides from the settings table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a settings store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC())
	return err
}
