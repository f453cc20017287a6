// Package zomato implements the Zomato web API: a country/CSRF bootstrap, a
// phone/OTP login flow, and page-numbered order history with a known total.
package zomato

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adg-dev/khaata/internal/common"
	"github.com/adg-dev/khaata/internal/headers"
	"github.com/adg-dev/khaata/internal/provider"
	"github.com/adg-dev/khaata/internal/service"
)

// Name is the provider key used for storage tables and audit artifacts.
const Name = "zomato"

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://www.zomato.com"

// Provider drives the Zomato login flow and order history walk.
type Provider struct {
	BaseURL  string
	client   *http.Client
	prompter service.Prompter
	static   map[string]string
	authed   *provider.Context

	totalPages int
}

// New constructs a Zomato provider seeded with the static headers at
// headerPath.
func New(headerPath string, prompter service.Prompter) (*Provider, error) {
	static, err := headers.Load(headerPath)
	if err != nil {
		return nil, err
	}

	return &Provider{
		BaseURL:  DefaultBaseURL,
		client:   provider.NewHTTPClient(),
		prompter: prompter,
		static:   static,
	}, nil
}

// Name returns the provider key.
func (p *Provider) Name() string { return Name }

// Authenticate discovers the account country, fetches a CSRF token, runs
// phone submission and OTP verification, and pins the referer to the
// verified user's ordering page.
func (p *Provider) Authenticate(ctx context.Context) (*provider.Context, error) {
	hdrs := provider.BuildHeaders(p.static, "", nil)
	reply, err := provider.Do(ctx, p.client, http.MethodGet, p.BaseURL+"/webroutes/auth/init", hdrs, "")
	if err != nil {
		return nil, fmt.Errorf("%w: auth init: %v", common.ErrAuthFailed, err)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("%w: auth init returned %d: %s", common.ErrAuthFailed, reply.Status, reply.Body)
	}
	var init struct {
		SelectedCountryCode struct {
			CountryID json.Number `json:"countryId"`
		} `json:"selected_country_code"`
	}
	if err := reply.Decode(&init); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}
	countryID := init.SelectedCountryCode.CountryID.String()

	reply, err = provider.Do(ctx, p.client, http.MethodGet, p.BaseURL+"/webroutes/auth/csrf", hdrs, "")
	if err != nil {
		return nil, fmt.Errorf("%w: csrf fetch: %v", common.ErrAuthFailed, err)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("%w: csrf fetch returned %d: %s", common.ErrAuthFailed, reply.Status, reply.Body)
	}
	var csrf struct {
		Csrf string `json:"csrf"`
	}
	if err := reply.Decode(&csrf); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}
	creds := map[string]string{"x-zomato-csrft": csrf.Csrf}

	mobile, err := p.prompter.Ask(ctx, "Enter Mobile Number")
	if err != nil {
		return nil, err
	}
	payload := fmt.Sprintf(`{"country_id":%s,"phone":%q,"verification_type":"sms","method":"phone"}`, countryID, mobile)
	hdrs = provider.BuildHeaders(p.static, payload, creds)
	reply, err = provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/webroutes/auth/login", hdrs, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: otp request: %v", common.ErrAuthFailed, err)
	}
	if !reply.OK() {
		slog.Warn("OTP request failed", "provider", Name, "status", reply.Status, "body", string(reply.Body))
	}

	otp, err := p.prompter.Ask(ctx, "Enter OTP")
	if err != nil {
		return nil, err
	}
	payload = fmt.Sprintf(`{"phone":%q,"code":%q,"country_id":%s}`, mobile, otp, countryID)
	hdrs = provider.BuildHeaders(p.static, payload, creds)
	reply, err = provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/webroutes/auth/mobile_login/verify", hdrs, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: code verification: %v", common.ErrAuthFailed, err)
	}
	// The verified username anchors the referer; the order endpoints reject
	// requests without it.
	if !reply.OK() {
		return nil, fmt.Errorf("%w: code verification returned %d: %s", common.ErrAuthFailed, reply.Status, reply.Body)
	}
	var verified struct {
		Username string `json:"username"`
	}
	if err := reply.Decode(&verified); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}

	final := provider.BuildHeaders(p.static, "", creds)
	final["referer"] = fmt.Sprintf("%s/%s/ordering", p.BaseURL, verified.Username)

	p.authed = &provider.Context{Client: p.client, Headers: final}
	slog.Info("Login successful", "provider", Name, "username", verified.Username)
	return p.authed, nil
}

// Logout tears the session down.
func (p *Provider) Logout(ctx context.Context) error {
	if p.authed == nil {
		return nil
	}

	reply, err := provider.Do(ctx, p.client, http.MethodGet, p.BaseURL+"/webroutes/auth/logout", p.authed.Headers, "")
	if err != nil {
		return err
	}
	if !reply.OK() {
		return fmt.Errorf("logout returned %d", reply.Status)
	}
	return nil
}
