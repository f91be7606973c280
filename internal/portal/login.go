// File: internal/portal/login.go
package portal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/config"
)

const loginPath = "/#/login"

const (
	usernameSelector    = "input[name*='username' i]"
	passwordSelector    = "input[type='password']"
	dpSelectSelector    = "select"
	loginButtonSelector = "button[type='submit']"
	errorBoxSelector    = ".error, .alert-danger, [class*='error']"
)

// Keywords that mark a failed login attempt in the page text.
var loginFailureKeywords = []string{
	"incorrect", "invalid", "wrong", "error", "failed", "unauthorized",
}

// Landmarks that only appear once the portal has let the user in.
var loginSuccessLandmarks = []string{"dashboard", "home", "portfolio", "asba"}

// Authenticator performs the portal login for one account: depository
// participant resolution, client id injection into the auth request, and
// outcome classification.
type Authenticator struct {
	page    Page
	baseURL string
	logger  *zap.Logger

	lastError string
}

// NewAuthenticator creates an authenticator bound to a page.
func NewAuthenticator(page Page, baseURL string, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		page:    page,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.Named("login"),
	}
}

// LastError returns the failure text captured from the page during the most
// recent login attempt, if any.
func (a *Authenticator) LastError() string {
	return a.lastError
}

// Login walks the full login flow for the account. A nil return means the
// portal accepted the credentials; any ambiguity is treated as failure.
func (a *Authenticator) Login(ctx context.Context, account config.Account) error {
	a.lastError = ""
	log := a.logger.With(zap.String("account", account.Label()))

	if err := a.page.Navigate(ctx, a.baseURL+loginPath); err != nil {
		return fmt.Errorf("could not reach login page: %w", err)
	}

	challenged, err := a.page.WaitForChallenge(ctx)
	if err != nil {
		return fmt.Errorf("challenge wait interrupted: %w", err)
	}
	if challenged {
		a.lastError = "interactive challenge on login page"
		return fmt.Errorf("login blocked by interactive challenge")
	}

	clientID, err := a.resolveDP(ctx, account)
	if err != nil {
		return err
	}
	log.Info("Resolved depository participant.", zap.String("client_id", clientID))

	if err := a.page.Fill(ctx, usernameSelector, account.Username); err != nil {
		return fmt.Errorf("could not fill username: %w", err)
	}
	if err := a.page.Fill(ctx, passwordSelector, account.Password); err != nil {
		return fmt.Errorf("could not fill password: %w", err)
	}

	if err := a.page.InjectScript(ctx, clientIDInterceptor(clientID)); err != nil {
		return fmt.Errorf("could not install request interceptor: %w", err)
	}

	if err := a.page.Click(ctx, loginButtonSelector); err != nil {
		return fmt.Errorf("could not click login button: %w", err)
	}

	// The auth call completing is the clearest sign the portal has decided.
	if !a.page.WaitForResponse(ctx, "/auth", waitShort) {
		log.Debug("No auth response observed within the wait window.")
	}
	if err := a.page.WaitIdle(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return a.classify(ctx, log)
}

// resolveDP selects the configured depository participant in the DP dropdown
// and extracts the numeric client id from the chosen option. A configured
// explicit client id serves as fallback when the option value is not numeric.
func (a *Authenticator) resolveDP(ctx context.Context, account config.Account) (string, error) {
	if account.DPName == "" {
		if account.ClientID != "" {
			return account.ClientID, nil
		}
		return "", fmt.Errorf("no dp_name or client_id configured for account %q", account.Label())
	}

	options, err := a.page.SelectOptions(ctx, dpSelectSelector)
	if err != nil {
		return "", fmt.Errorf("could not list DP options: %w", err)
	}

	wanted := strings.ToUpper(account.DPName)
	for _, opt := range options {
		if !strings.Contains(strings.ToUpper(opt.Text), wanted) {
			continue
		}
		if err := a.page.SelectByValue(ctx, dpSelectSelector, opt.Value); err != nil {
			return "", fmt.Errorf("could not select DP option %q: %w", opt.Text, err)
		}

		clientID := ""
		if isDigits(opt.Value) {
			clientID = opt.Value
		} else if account.ClientID != "" {
			clientID = account.ClientID
		}
		if clientID == "" || clientID == "0" {
			return "", fmt.Errorf("DP option %q yields no usable client id", opt.Text)
		}
		return clientID, nil
	}

	return "", fmt.Errorf("no DP option matching %q", account.DPName)
}

// classify reads the post-submit page state and decides whether the login
// landed. Unclear outcomes count as failures.
func (a *Authenticator) classify(ctx context.Context, log *zap.Logger) error {
	url, err := a.page.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("could not read URL after login: %w", err)
	}
	text, err := a.page.PageText(ctx)
	if err != nil {
		return fmt.Errorf("could not read page after login: %w", err)
	}

	url = strings.ToLower(url)
	lowerText := strings.ToLower(text)

	for _, kw := range loginFailureKeywords {
		if !strings.Contains(lowerText, kw) {
			continue
		}
		detail, _ := a.page.ElementText(ctx, errorBoxSelector, 0)
		if detail == "" {
			detail = "login rejected (" + kw + ")"
		}
		a.lastError = truncate(detail, 100)
		log.Warn("Login rejected by portal.", zap.String("detail", a.lastError))
		return fmt.Errorf("login failed: %s", a.lastError)
	}

	if !strings.Contains(url, "login") {
		return nil
	}
	for _, landmark := range loginSuccessLandmarks {
		if strings.Contains(url, landmark) || strings.Contains(lowerText, landmark) {
			return nil
		}
	}

	a.lastError = "login status unclear"
	log.Warn("Login outcome could not be classified, treating as failure.")
	return fmt.Errorf("login status unclear")
}

// clientIDInterceptor returns a script that rewrites the JSON body of login
// and auth POST requests to carry the resolved client id. Installing it twice
// is harmless; the hook guards itself.
func clientIDInterceptor(clientID string) string {
	cid := clientID
	if _, err := strconv.Atoi(clientID); err != nil {
		cid = strconv.Quote(clientID)
	}
	return fmt.Sprintf(`(function() {
		if (window.__cidHookInstalled) { return; }
		window.__cidHookInstalled = true;
		var cid = %s;
		var isLoginReq = function(url, method) {
			return method === 'POST' && (String(url).includes('/login') || String(url).includes('/auth') || String(url).includes('meroshare'));
		};
		var injectClientId = function(body) {
			try {
				var data = typeof body === 'string' ? JSON.parse(body) : body;
				data.clientId = cid;
				return JSON.stringify(data);
			} catch(e) { return body; }
		};
		var origFetch = window.fetch;
		window.fetch = function(url, opts) {
			if (isLoginReq(url, (opts || {}).method)) {
				if (opts && opts.body) { opts.body = injectClientId(opts.body); }
			}
			return origFetch.apply(this, arguments);
		};
		var origOpen = XMLHttpRequest.prototype.open;
		var origSend = XMLHttpRequest.prototype.send;
		XMLHttpRequest.prototype.open = function(method, url) {
			this._method = method;
			this._url = url;
			return origOpen.apply(this, arguments);
		};
		XMLHttpRequest.prototype.send = function(data) {
			if (isLoginReq(this._url, this._method) && data) {
				data = injectClientId(data);
			}
			return origSend.apply(this, [data]);
		};
	})();`, cid)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// truncate bounds s to at most n bytes without splitting a multi-byte rune.
// Portal error text is often Devanagari, so a raw byte cut could leave the
// string with an invalid trailing sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// waitShort is the default bounded wait used for secondary elements.
const waitShort = 10 * time.Second
