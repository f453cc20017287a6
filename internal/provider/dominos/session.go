// Package dominos implements the Dominos India web API: an anonymous-user
// bootstrap, a phone/OTP login flow, and link-chained order pagination.
package dominos

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adg-dev/khaata/internal/common"
	"github.com/adg-dev/khaata/internal/headers"
	"github.com/adg-dev/khaata/internal/provider"
	"github.com/adg-dev/khaata/internal/service"
)

// Name is the provider key used for storage tables and audit artifacts.
const Name = "dominos"

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.dominos.co.in"

// Provider drives the Dominos login flow and order history walk.
type Provider struct {
	BaseURL  string
	client   *http.Client
	prompter service.Prompter
	static   map[string]string
	creds    map[string]string
	authed   *provider.Context
}

// New constructs a Dominos provider seeded with the static headers at
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

type bootstrapReply struct {
	Credentials map[string]string `json:"credentials"`
	UserID      string            `json:"userId"`
}

type verifyReply struct {
	Attributes struct {
		UserID string `json:"userId"`
	} `json:"attributes"`
	Credentials struct {
		AccessToken string `json:"accessToken"`
	} `json:"credentials"`
}

// Authenticate runs anonymous bootstrap, phone submission and OTP
// verification, returning the authorized transport context.
func (p *Provider) Authenticate(ctx context.Context) (*provider.Context, error) {
	// Anonymous bootstrap issues the interim credentials every login step
	// must carry. Without them nothing else can proceed.
	hdrs := provider.BuildHeaders(p.static, "", nil)
	reply, err := provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/loginhandler/anonymoususer", hdrs, "")
	if err != nil {
		return nil, fmt.Errorf("%w: anonymous bootstrap: %v", common.ErrAuthFailed, err)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("%w: anonymous bootstrap returned %d: %s", common.ErrAuthFailed, reply.Status, reply.Body)
	}

	var boot bootstrapReply
	if err := reply.Decode(&boot); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}
	p.creds = make(map[string]string, len(boot.Credentials)+2)
	for k, v := range boot.Credentials {
		p.creds[strings.ToLower(k)] = v
	}
	p.creds["userid"] = boot.UserID
	p.creds["authtoken"] = p.creds["accesskeyid"]

	mobile, err := p.prompter.Ask(ctx, "Enter Mobile Number")
	if err != nil {
		return nil, err
	}
	payload := fmt.Sprintf(`{"lastName":"","mobile":%q,"firstName":""}`, mobile)
	hdrs = provider.BuildHeaders(p.static, payload, p.creds)
	reply, err = provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/loginhandler/forgotpassword", hdrs, payload)
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
	payload = fmt.Sprintf(`{"mobile": %q,"code": %q,"screenName": "Login Screen"}`, mobile, otp)
	hdrs = provider.BuildHeaders(p.static, payload, p.creds)
	reply, err = provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/loginhandler/validatecode", hdrs, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: code validation: %v", common.ErrAuthFailed, err)
	}
	// The validated reply carries the final credentials; without them the
	// session cannot reach its ready state.
	if !reply.OK() {
		return nil, fmt.Errorf("%w: code validation returned %d: %s", common.ErrAuthFailed, reply.Status, reply.Body)
	}

	var verified verifyReply
	if err := reply.Decode(&verified); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}

	// Bootstrap credentials are replaced wholesale by the login credentials.
	p.creds = nil
	final := provider.BuildHeaders(p.static, "", nil)
	final["userid"] = verified.Attributes.UserID
	final["authtoken"] = verified.Credentials.AccessToken
	final["isloggedin"] = "true"

	p.authed = &provider.Context{Client: p.client, Headers: final}
	slog.Info("Login successful", "provider", Name)
	return p.authed, nil
}

// Logout drops back to an anonymous session.
func (p *Provider) Logout(ctx context.Context) error {
	if p.authed == nil {
		return nil
	}

	reply, err := provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/loginhandler/anonymoususer", p.authed.Headers, "")
	if err != nil {
		return err
	}
	if !reply.OK() {
		return fmt.Errorf("logout returned %d", reply.Status)
	}
	return nil
}
