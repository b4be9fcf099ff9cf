package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultTokenPath extracts the access token from an OAuth token response
	DefaultTokenPath = "access_token"

	// DefaultExpiresInPath extracts the lifetime in seconds from an OAuth token response
	DefaultExpiresInPath = "expires_in"
)

// ErrTokenExtractionFailed is returned when the token path yields nothing
var ErrTokenExtractionFailed = errors.New("failed to extract token from response")

// TokenConfig configures the client credentials grant
type TokenConfig struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Scope         string
	TokenPath     string
	ExpiresInPath string
	Timeout       time.Duration
}

// TokenProvider obtains credentials with the OAuth2 client credentials grant.
// It implements credentials.Provider.
type TokenProvider struct {
	config    TokenConfig
	client    *http.Client
	tokenPath *jmespath.JMESPath
	expiresIn *jmespath.JMESPath
	logger    ectologger.Logger
	now       func() time.Time
}

// NewTokenProvider creates a token provider, compiling its extraction paths up front
func NewTokenProvider(cfg TokenConfig, logger ectologger.Logger) (*TokenProvider, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("token url is required")
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}
	if cfg.ExpiresInPath == "" {
		cfg.ExpiresInPath = DefaultExpiresInPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	tokenPath, err := jmespath.Compile(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("invalid token path %q: %w", cfg.TokenPath, err)
	}
	expiresIn, err := jmespath.Compile(cfg.ExpiresInPath)
	if err != nil {
		return nil, fmt.Errorf("invalid expires in path %q: %w", cfg.ExpiresInPath, err)
	}

	return &TokenProvider{
		config:    cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		tokenPath: tokenPath,
		expiresIn: expiresIn,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Token requests a new credential from the token endpoint
func (p *TokenProvider) Token(ctx context.Context) (*credentials.Credential, error) {
	ctx, span := tracing.StartSpan(ctx, "TokenProvider.Token")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if p.config.Scope != "" {
		form.Set("scope", p.config.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if !IsSuccessStatus(resp.StatusCode) {
		return nil, httperror.NewHTTPErrorf(resp.StatusCode, "token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	return p.extract(ctx, data)
}

func (p *TokenProvider) extract(ctx context.Context, data any) (*credentials.Credential, error) {
	raw, err := p.tokenPath.Search(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExtractionFailed, err)
	}
	token, _ := raw.(string)
	if token == "" {
		return nil, fmt.Errorf("%w: token_path=%s", ErrTokenExtractionFailed, p.config.TokenPath)
	}

	now := p.now()
	cred := &credentials.Credential{
		Value:     token,
		TokenType: "Bearer",
		CreatedAt: now.Unix(),
	}

	if v, err := p.expiresIn.Search(data); err == nil {
		if seconds := toSeconds(v); seconds > 0 {
			cred.ExpiresAt = now.Unix() + seconds
		}
	}
	if tt, err := jmespath.Search("token_type", data); err == nil {
		if s, ok := tt.(string); ok && strings.EqualFold(s, "bearer") {
			cred.TokenType = "Bearer"
		} else if ok && s != "" {
			cred.TokenType = s
		}
	}

	p.logger.WithContext(ctx).Debugf("obtained service credential expiring at %d", cred.ExpiresAt)
	return cred, nil
}

func toSeconds(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		var s int64
		if _, err := fmt.Sscan(n, &s); err == nil {
			return s
		}
	}
	return 0
}
