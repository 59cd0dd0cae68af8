package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DesktopRefresher implements the simple Desktop Auth refresh protocol:
// POST {"refreshToken": ...} to https://prod.{region}.auth.desktop.<host>/refreshToken.
// Grounded on original_source/kiro/auth.py's desktop-auth branch.
type DesktopRefresher struct {
	Region     string
	HostSuffix string // e.g. "auth.desktop.example.com"
	HTTPClient *http.Client
}

// NewDesktopRefresher builds a DesktopRefresher with a 30s-timeout client
// (spec.md §5: "refresh HTTP calls time out at 30s").
func NewDesktopRefresher(region, hostSuffix string) *DesktopRefresher {
	return &DesktopRefresher{
		Region:     region,
		HostSuffix: hostSuffix,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type desktopRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type desktopResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

func (d *DesktopRefresher) Refresh(ctx context.Context, refreshToken, _, _ string) (RefreshResult, error) {
	url := fmt.Sprintf("https://prod.%s.%s/refreshToken", d.Region, d.HostSuffix)
	body, err := json.Marshal(desktopRequest{RefreshToken: refreshToken})
	if err != nil {
		return RefreshResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return RefreshResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return RefreshResult{}, &RefreshError{Status: 0, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return RefreshResult{}, &RefreshError{Status: resp.StatusCode, Err: fmt.Errorf("desktop refresh failed: status %d: %s", resp.StatusCode, string(data))}
	}

	var dr desktopResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		return RefreshResult{}, &RefreshError{Status: resp.StatusCode, Err: err}
	}
	return RefreshResult{
		AccessToken:  dr.AccessToken,
		RefreshToken: dr.RefreshToken,
		ExpiresIn:    time.Duration(dr.ExpiresIn) * time.Second,
		ProfileArn:   dr.ProfileArn,
	}, nil
}
