package dremio

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/querylens/querylens/pkg/clients"
	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
)

// tokenLifetime keeps one hour of safety under the provider's nominal
// 24h token lifetime.
const tokenLifetime = 23 * time.Hour

// Credential is an immutable bearer credential. Replaced wholesale on
// re-authentication, never partially mutated.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be attached to a
// request at the given instant.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Token != "" && now.Before(c.ExpiresAt)
}

// TokenManager owns the bearer credential and the login call. It is
// dialect-agnostic: the router decides how the token is rendered into
// an Authorization header.
//
// A mutex serializes refreshes so a concurrent caller cannot trigger a
// double re-authentication.
type TokenManager struct {
	mu sync.Mutex

	baseURL  string
	username string
	password string
	// static is a pre-issued personal access token. When set, the login
	// flow is skipped and the credential never expires client-side.
	static string

	cred   *Credential
	httpc  *clients.HTTPClient
	logger *zap.Logger

	// now is replaceable for tests
	now func() time.Time
}

// NewTokenManager creates a token manager. Pass a pre-issued token via
// staticToken to bypass the login flow entirely.
func NewTokenManager(baseURL, username, password, staticToken string, httpc *clients.HTTPClient, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		baseURL:  baseURL,
		username: username,
		password: password,
		static:   staticToken,
		httpc:    httpc,
		logger:   logger.With(zap.String("component", "token_manager")),
		now:      time.Now,
	}
}

// GetValidCredential returns the cached credential while it is valid,
// otherwise synthesizes a new one (from the static token, or via the
// login endpoint). Authentication failure is fatal to the in-flight
// call; the enclosing retry policy governs retries of the whole
// operation.
func (tm *TokenManager) GetValidCredential(ctx context.Context) (Credential, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := tm.now()
	if tm.cred.Valid(now) {
		return *tm.cred, nil
	}

	if tm.static != "" {
		// Pre-issued tokens don't expire client-side.
		tm.cred = &Credential{
			Token:     tm.static,
			IssuedAt:  now,
			ExpiresAt: now.AddDate(100, 0, 0),
		}
		return *tm.cred, nil
	}

	cred, err := tm.authenticate(ctx, now)
	if err != nil {
		return Credential{}, err
	}
	tm.cred = cred
	return *tm.cred, nil
}

// Invalidate clears the cached credential, forcing the next
// GetValidCredential call to re-authenticate. Called by the gateway
// upon a 401.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.cred = nil
}

// loginRequest is the legacy login payload shape.
type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// authenticate performs the synchronous login call. Caller holds the
// mutex.
func (tm *TokenManager) authenticate(ctx context.Context, now time.Time) (*Credential, error) {
	if tm.username == "" {
		return nil, qlerrors.New(qlerrors.ErrorTypeAuthentication, "no token and no username configured")
	}

	body, err := json.Marshal(loginRequest{UserName: tm.username, Password: tm.password})
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeInternal, "failed to encode login payload")
	}

	headers := map[string]string{"Content-Type": "application/json"}
	resp, err := tm.httpc.Post(ctx, tm.baseURL+"/apiv2/login", bytes.NewReader(body), headers)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "login request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, qlerrors.Newf(qlerrors.ErrorTypeAuthentication, "login rejected with status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "failed to decode login response")
	}
	if lr.Token == "" {
		return nil, qlerrors.New(qlerrors.ErrorTypeAuthentication, "login response carried no token")
	}

	tm.logger.Debug("authenticated against engine",
		zap.Time("expires_at", now.Add(tokenLifetime)))

	return &Credential{
		Token:     lr.Token,
		IssuedAt:  now,
		ExpiresAt: now.Add(tokenLifetime),
	}, nil
}
