package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// authKV is the GORM model backing the auth_kv(key, value) table (spec.md
// §6). Grounded on the teacher's persistence layer shape
// (internal/infrastructure/persistence/db.go's dialector switch,
// gorm_message_repository.go's repository style) repurposed for a plain
// key-value table instead of message/agent rows.
type authKV struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (authKV) TableName() string { return "auth_kv" }

// sqlValue is the snake_case JSON shape stored in the value column
// (spec.md §6).
type sqlValue struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	Region       string `json:"region"`
	Scopes       string `json:"scopes,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// deviceRegistration is the value shape of the two device-registration
// sibling keys (KeyOIDCDeviceRegistration, KeyLegacyOIDCDeviceRegistration).
// ClientIDHash is decoded but not compared against anything.
type deviceRegistration struct {
	ClientIDHash string `json:"client_id_hash"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// OpenDB opens a GORM connection for the given dbType ("sqlite"|"postgres")
// and dsn, and ensures the auth_kv table exists. Grounded on
// NewDBConnection in the teacher's db.go (dialector switch, NowFunc UTC).
func OpenDB(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported credential_store.db_type %q", dbType)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}
	if err := db.AutoMigrate(&authKV{}); err != nil {
		return nil, fmt.Errorf("migrate auth_kv: %w", err)
	}
	return db, nil
}

// SQLStore persists a credential Envelope in the auth_kv table, searching
// keys in the fixed priority order of spec.md §4.A and remembering which
// key satisfied the load for write-back.
type SQLStore struct {
	DB         *gorm.DB
	Logger     *zap.Logger
	loadedFrom string // empty until a successful Load
}

// NewSQLStore builds a SQLStore over an already-opened, migrated DB.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{DB: db, Logger: logger}
}

func (s *SQLStore) Load() (Envelope, bool, error) {
	for _, key := range keyPriority {
		var row authKV
		err := s.DB.Where("key = ?", key).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			s.Logger.Warn("sql credential lookup failed", zap.String("key", key), zap.Error(err))
			continue
		}
		var v sqlValue
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			s.Logger.Warn("malformed sql credential value", zap.String("key", key), zap.Error(err))
			continue
		}
		s.loadedFrom = key
		expiresAt, _ := parseISO8601(v.ExpiresAt)
		env := Envelope{
			RefreshToken: v.RefreshToken,
			AccessToken:  v.AccessToken,
			ExpiresAt:    expiresAt,
			Region:       v.Region,
			ClientID:     v.ClientID,
			ClientSecret: v.ClientSecret,
		}
		if env.ClientID == "" && strings.Contains(key, "oidc") {
			if reg, ok := s.resolveDeviceRegistration(key, v.RefreshToken); ok {
				env.ClientID = reg.ClientID
				env.ClientSecret = reg.ClientSecret
			}
		}
		return env, true, nil
	}
	s.Logger.Warn("no sql credential row found for any known key, proceeding without stored credentials")
	return Envelope{}, false, nil
}

// resolveDeviceRegistration reads the client id/secret pair stored under the
// device-registration key paired with oidcKey (the legacy key for
// KeyLegacyOIDC, the current one otherwise). No hash is compared and
// refreshToken is not used: whatever pair that key holds is returned.
// Supplements spec.md's distillation with a detail present in the original
// implementation (SPEC_FULL.md §4).
func (s *SQLStore) resolveDeviceRegistration(oidcKey, refreshToken string) (deviceRegistration, bool) {
	siblingKey := KeyOIDCDeviceRegistration
	if oidcKey == KeyLegacyOIDC {
		siblingKey = KeyLegacyOIDCDeviceRegistration
	}
	var row authKV
	if err := s.DB.Where("key = ?", siblingKey).First(&row).Error; err != nil {
		return deviceRegistration{}, false
	}
	var reg deviceRegistration
	if err := json.Unmarshal([]byte(row.Value), &reg); err != nil {
		return deviceRegistration{}, false
	}
	return reg, true
}

func (s *SQLStore) Save(e Envelope) error {
	v := sqlValue{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		ExpiresAt:    e.ExpiresAt.UTC().Format(time.RFC3339),
		Region:       e.Region,
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	keys := []string{s.loadedFrom}
	if s.loadedFrom == "" {
		keys = keyPriority
	}
	var lastErr error
	for _, key := range keys {
		if key == "" {
			continue
		}
		row := authKV{Key: key, Value: string(data)}
		err := s.DB.Save(&row).Error
		if err == nil {
			s.loadedFrom = key
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		s.Logger.Warn("failed to save credential to any known sql key", zap.Error(lastErr))
	}
	return lastErr
}
