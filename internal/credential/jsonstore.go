package credential

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// jsonEnvelope is the on-disk JSON shape (spec.md §6): camelCase fields.
type jsonEnvelope struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
	ProfileArn   string `json:"profileArn"`
	Region       string `json:"region"`
	ExpiresAt    string `json:"expiresAt"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	ClientIDHash string `json:"clientIdHash,omitempty"`
}

// JSONStore persists a single credential Envelope to a JSON file on disk.
type JSONStore struct {
	Path   string
	Logger *zap.Logger
}

// NewJSONStore builds a JSONStore rooted at path.
func NewJSONStore(path string, logger *zap.Logger) *JSONStore {
	return &JSONStore{Path: path, Logger: logger}
}

func (s *JSONStore) Load() (Envelope, bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.Logger.Warn("credentials file not found, proceeding without stored credentials", zap.String("path", s.Path))
			return Envelope{}, false, nil
		}
		s.Logger.Warn("failed to read credentials file", zap.Error(err))
		return Envelope{}, false, nil
	}
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		s.Logger.Warn("malformed credentials JSON, proceeding without stored credentials", zap.Error(err))
		return Envelope{}, false, nil
	}
	expiresAt, _ := parseISO8601(je.ExpiresAt)
	return Envelope{
		RefreshToken: je.RefreshToken,
		AccessToken:  je.AccessToken,
		ExpiresAt:    expiresAt,
		ProfileArn:   je.ProfileArn,
		Region:       je.Region,
		ClientID:     je.ClientID,
		ClientSecret: je.ClientSecret,
		ClientIDHash: je.ClientIDHash,
	}, true, nil
}

func (s *JSONStore) Save(e Envelope) error {
	je := jsonEnvelope{
		RefreshToken: e.RefreshToken,
		AccessToken:  e.AccessToken,
		ProfileArn:   e.ProfileArn,
		Region:       e.Region,
		ExpiresAt:    e.ExpiresAt.UTC().Format(time.RFC3339),
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		ClientIDHash: e.ClientIDHash,
	}
	data, err := json.MarshalIndent(je, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

// parseISO8601 parses an ISO-8601 timestamp, accepting a trailing "Z" as
// "+00:00" per spec.md §4.A.
func parseISO8601(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s+"Z")
}
