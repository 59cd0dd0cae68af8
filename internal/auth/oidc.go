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

// OIDCRefresher implements the AWS-SSO-OIDC refresh protocol: POST
// {"grantType":"refresh_token","clientId":...,"clientSecret":...,
// "refreshToken":...} to https://oidc.{sso_region}.amazonaws.com/token.
// Grounded on original_source/kiro/auth.py's OIDC branch and
// original_source/kiro/auth_multi.py's AuthType.AWS_SSO_OIDC doc comment.
type OIDCRefresher struct {
	SSORegion  string
	HTTPClient *http.Client
}

// NewOIDCRefresher builds an OIDCRefresher with a 30s-timeout client.
func NewOIDCRefresher(ssoRegion string) *OIDCRefresher {
	return &OIDCRefresher{
		SSORegion:  ssoRegion,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type oidcRequest struct {
	GrantType    string `json:"grantType"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

type oidcResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

func (o *OIDCRefresher) Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (RefreshResult, error) {
	url := fmt.Sprintf("https://oidc.%s.amazonaws.com/token", o.SSORegion)
	body, err := json.Marshal(oidcRequest{
		GrantType:    "refresh_token",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return RefreshResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return RefreshResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return RefreshResult{}, &RefreshError{Status: 0, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return RefreshResult{}, &RefreshError{Status: resp.StatusCode, Err: fmt.Errorf("oidc refresh failed: status %d: %s", resp.StatusCode, string(data))}
	}

	var or oidcResponse
	if err := json.Unmarshal(data, &or); err != nil {
		return RefreshResult{}, &RefreshError{Status: resp.StatusCode, Err: err}
	}
	return RefreshResult{
		AccessToken:  or.AccessToken,
		RefreshToken: or.RefreshToken,
		ExpiresIn:    time.Duration(or.ExpiresIn) * time.Second,
		ProfileArn:   or.ProfileArn,
	}, nil
}
