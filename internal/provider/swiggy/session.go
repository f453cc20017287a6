// Package swiggy implements the Swiggy web API: a CSRF-token bootstrap, a
// phone/OTP login flow, and last-id-cursored order pagination.
//
// Swiggy signals failure inside an HTTP 200: a JSON body whose statusCode is
// absent or non-zero. Every auth step checks for that shape.
package swiggy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/adg-dev/khaata/internal/common"
	"github.com/adg-dev/khaata/internal/headers"
	"github.com/adg-dev/khaata/internal/provider"
	"github.com/adg-dev/khaata/internal/service"
)

// Name is the provider key used for storage tables and audit artifacts.
const Name = "swiggy"

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://www.swiggy.com"

// Provider drives the Swiggy login flow and order history walk.
type Provider struct {
	BaseURL  string
	client   *http.Client
	prompter service.Prompter
	static   map[string]string
	csrf     string
	authed   bool
}

// New constructs a Swiggy provider seeded with the static headers at
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

// bodyFailure reports Swiggy's in-band failure shape: HTTP 200 whose JSON
// statusCode is missing or non-zero. Non-200 replies are not its concern.
func bodyFailure(reply *provider.Response) error {
	if !reply.OK() {
		return nil
	}
	var env struct {
		StatusCode *int `json:"statusCode"`
	}
	if err := reply.Decode(&env); err != nil {
		return err
	}
	if env.StatusCode == nil || *env.StatusCode != 0 {
		return fmt.Errorf("non-zero statusCode: %s", reply.Body)
	}
	return nil
}

// Authenticate fetches a CSRF token, runs phone submission and OTP
// verification, and refreshes the token for the authenticated session.
func (p *Provider) Authenticate(ctx context.Context) (*provider.Context, error) {
	hdrs := provider.BuildHeaders(p.static, "", nil)
	reply, err := provider.Do(ctx, p.client, http.MethodGet, p.BaseURL+"/dapi/cart", hdrs, "")
	if err != nil {
		return nil, fmt.Errorf("%w: csrf bootstrap: %v", common.ErrAuthFailed, err)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("%w: csrf bootstrap returned %d: %s", common.ErrAuthFailed, reply.Status, reply.Body)
	}
	var cart struct {
		CsrfToken string `json:"csrfToken"`
	}
	if err := reply.Decode(&cart); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}
	if cart.CsrfToken == "" {
		return nil, fmt.Errorf("%w: cart reply carried no csrf token", common.ErrAuthFailed)
	}
	p.csrf = cart.CsrfToken

	mobile, err := p.prompter.Ask(ctx, "Enter Mobile Number")
	if err != nil {
		return nil, err
	}
	payload := fmt.Sprintf(`{"mobile": %q,"_csrf":%q}`, mobile, p.csrf)
	if err := p.post(ctx, "/dapi/auth/sms-otp", payload); err != nil {
		return nil, fmt.Errorf("%w: otp request: %v", common.ErrAuthFailed, err)
	}

	otp, err := p.prompter.Ask(ctx, "Enter OTP")
	if err != nil {
		return nil, err
	}
	payload = fmt.Sprintf(`{"otp":%q,"_csrf":%q}`, otp, p.csrf)
	if err := p.post(ctx, "/dapi/auth/otp-verify", payload); err != nil {
		return nil, fmt.Errorf("%w: otp verification: %v", common.ErrAuthFailed, err)
	}

	// The pre-login token is spent; the order endpoint issues the one the
	// authenticated session must use.
	hdrs = provider.BuildHeaders(p.static, "", nil)
	reply, err = provider.Do(ctx, p.client, http.MethodGet, p.BaseURL+"/dapi/order/all?order_id=", hdrs, "")
	if err != nil {
		return nil, fmt.Errorf("%w: csrf refresh: %v", common.ErrAuthFailed, err)
	}
	if err := bodyFailure(reply); err != nil {
		return nil, fmt.Errorf("%w: csrf refresh: %v", common.ErrAuthFailed, err)
	}
	var refreshed struct {
		CsrfToken string `json:"csrfToken"`
	}
	if err := reply.Decode(&refreshed); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthFailed, err)
	}
	p.csrf = refreshed.CsrfToken

	p.authed = true
	return &provider.Context{Client: p.client, Headers: provider.BuildHeaders(p.static, "", nil)}, nil
}

func (p *Provider) post(ctx context.Context, path, payload string) error {
	hdrs := provider.BuildHeaders(p.static, payload, nil)
	reply, err := provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+path, hdrs, payload)
	if err != nil {
		return err
	}
	return bodyFailure(reply)
}

// Logout invalidates the session using the refreshed CSRF token.
func (p *Provider) Logout(ctx context.Context) error {
	if !p.authed {
		return nil
	}

	payload := fmt.Sprintf(`{"_csrf":%q}`, p.csrf)
	hdrs := provider.BuildHeaders(p.static, payload, nil)
	reply, err := provider.Do(ctx, p.client, http.MethodPost, p.BaseURL+"/dapi/auth/logout", hdrs, payload)
	if err != nil {
		return err
	}
	return bodyFailure(reply)
}
