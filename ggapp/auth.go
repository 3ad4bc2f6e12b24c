package ggapp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// AuthState is the progress of an AuthFlow.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthPopupOpen
	AuthTokenFound
	AuthClosedWithoutToken
	AuthBlocked
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthPopupOpen:
		return "popup-open"
	case AuthTokenFound:
		return "token-found"
	case AuthClosedWithoutToken:
		return "closed-without-token"
	case AuthBlocked:
		return "blocked"
	}
	return "unknown"
}

// DefaultAuthTimeout bounds how long an AuthFlow waits for the browser to come back.
const DefaultAuthTimeout = 5 * time.Minute

// callbackPage runs in the browser on the redirect target. The implicit grant puts the
// token in the URL fragment, which browsers never send to servers, so the page forwards it
// as a query string to /callback.
const callbackPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>ggbackup</title></head>
<body><p>Finishing sign-in...</p>
<script>
var params = window.location.hash ? window.location.hash.substring(1) : window.location.search.substring(1);
window.location.replace("callback?" + params);
</script></body></html>`

// AuthFlow obtains an access token through the OAuth implicit grant: the authorization
// page is opened in the system browser and redirects to a short-lived loopback server.
type AuthFlow struct {
	// Config holds the client id, the redirect URL and the scopes. No client secret is
	// needed, the token comes straight from the authorization endpoint.
	Config *oauth2.Config
	// Open shows url to the user. It defaults to browser.OpenURL.
	Open func(url string) error
	// Timeout bounds the wait for the redirect. Zero means DefaultAuthTimeout.
	Timeout time.Duration
	// Fallback, when set, is asked for an address to inspect when the redirect did not
	// carry a token, typically the address the user's browser ended on.
	Fallback func(ctx context.Context) (string, error)

	logger *zap.Logger
	state  AuthState
}

// NewAuthFlow returns a flow requesting file-scoped Drive access for clientID.
func NewAuthFlow(clientID, redirectURL string, logger *zap.Logger) *AuthFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthFlow{
		Config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      []string{drive.DriveFileScope},
			Endpoint:    google.Endpoint,
		},
		Open:   browser.OpenURL,
		logger: logger,
	}
}

// State returns where the last Run stopped.
func (f *AuthFlow) State() AuthState { return f.state }

// AuthURL returns the authorization URL asking for a token in the redirect fragment.
func (f *AuthFlow) AuthURL(state string) string {
	return f.Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// Run performs one authorization and returns the token. It fails with ErrPopupBlocked
// when the browser cannot be opened and with ErrTokenNotFound when the redirect (and the
// fallback) carried no token before the timeout or the cancellation of ctx.
func (f *AuthFlow) Run(ctx context.Context) (*oauth2.Token, error) {
	f.state = AuthIdle
	if f.Config.ClientID == "" {
		return nil, fmt.Errorf("no OAuth client id configured, run 'ggbackup config set-client-id <id>'")
	}

	redirect, err := url.Parse(f.Config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", f.Config.RedirectURL, err)
	}
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	if redirect.Port() == "0" {
		// An ephemeral port is only known once bound.
		redirect.Host = ln.Addr().String()
		f.Config.RedirectURL = redirect.String()
	}
	if redirect.Path == "" {
		redirect.Path = "/"
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, callbackPage)
	})
	mux.HandleFunc(redirect.ResolveReference(&url.URL{Path: "callback"}).Path, func(w http.ResponseWriter, r *http.Request) {
		if errMsg := r.FormValue("error"); errMsg != "" {
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", errMsg)})
			fmt.Fprint(w, "Authentication failed. You can close this window.")
			return
		}
		if r.FormValue("state") != state {
			deliver(callbackResult{err: errors.New("invalid state parameter received")})
			http.Error(w, "Invalid state parameter.", http.StatusBadRequest)
			return
		}
		tok, ok := tokenFromValues(r.Form)
		if !ok {
			deliver(callbackResult{err: errors.New("redirect carried no access token")})
			fmt.Fprint(w, "No access token received. You can close this window.")
			return
		}
		deliver(callbackResult{token: tok})
		fmt.Fprint(w, "✅ Authentication successful! You can now close this browser window and return to the terminal.")
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			deliver(callbackResult{err: fmt.Errorf("callback server error: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			f.logger.Warn("failed to shutdown callback server", zap.Error(err))
		}
	}()

	authURL := f.AuthURL(state)
	f.state = AuthPopupOpen
	f.logger.Debug("opening authorization page", zap.String("redirect", f.Config.RedirectURL))
	if err := f.Open(authURL); err != nil {
		f.state = AuthBlocked
		return nil, fmt.Errorf("%w: %v", ErrPopupBlocked, err)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reason error
	select {
	case r := <-results:
		if r.token != nil {
			f.state = AuthTokenFound
			return r.token, nil
		}
		reason = r.err
	case <-waitCtx.Done():
		reason = waitCtx.Err()
	}

	f.state = AuthClosedWithoutToken
	f.logger.Info("redirect ended without a token", zap.Error(reason))
	if f.Fallback != nil && ctx.Err() == nil {
		addr, err := f.Fallback(ctx)
		if err != nil {
			f.logger.Warn("fallback address unavailable", zap.Error(err))
		} else if tok, ok := ExtractToken(addr); ok {
			f.state = AuthTokenFound
			return tok, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTokenNotFound, reason)
}

var accessTokenRe = regexp.MustCompile(`access_token=([^&]+)`)

// ExtractToken finds an access token in an address, looking at its fragment first.
func ExtractToken(addr string) (*oauth2.Token, bool) {
	if addr == "" {
		return nil, false
	}
	if u, err := url.Parse(addr); err == nil {
		for _, raw := range []string{u.Fragment, u.RawQuery} {
			if v, err := url.ParseQuery(raw); err == nil {
				if tok, ok := tokenFromValues(v); ok {
					return tok, true
				}
			}
		}
	}
	m := accessTokenRe.FindStringSubmatch(addr)
	if m == nil {
		return nil, false
	}
	tok, err := url.QueryUnescape(m[1])
	if err != nil {
		tok = m[1]
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, true
}

func tokenFromValues(v url.Values) (*oauth2.Token, bool) {
	access := v.Get("access_token")
	if access == "" {
		return nil, false
	}
	tok := &oauth2.Token{AccessToken: access, TokenType: v.Get("token_type")}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if secs, err := strconv.Atoi(v.Get("expires_in")); err == nil && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return tok, true
}
