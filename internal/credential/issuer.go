package credential

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	// DefaultScope grants access to the messaging send endpoint.
	DefaultScope = "https://www.googleapis.com/auth/firebase.messaging"

	grantType         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime = time.Hour
	maxResponseBytes  = 1 << 20
)

// Kind tells which step of credential issuance failed.
type Kind string

const (
	KindKey      Kind = "key"
	KindSign     Kind = "sign"
	KindExchange Kind = "exchange"
	KindDecode   Kind = "decode"
)

// Error is returned for every issuance failure. Detail carries the token
// endpoint's response body when the exchange was rejected.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "gateway credential " + string(e.Kind) + " failed"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds the service-account material the issuer signs with.
type Config struct {
	ClientEmail string
	PrivateKey  string
	TokenURL    string
	Scope       string
}

// Issuer exchanges a signed assertion for a short-lived bearer token.
type Issuer struct {
	email    string
	key      *rsa.PrivateKey
	tokenURL string
	scope    string
	client   *http.Client
	now      func() time.Time
}

// NewIssuer parses the PEM private key (PKCS#1 or PKCS#8) and returns an
// issuer. A nil client uses http.DefaultClient.
func NewIssuer(cfg Config, client *http.Client) (*Issuer, error) {
	pemKey := strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, &Error{Kind: KindKey, Err: err}
	}
	if client == nil {
		client = http.DefaultClient
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	return &Issuer{
		email:    cfg.ClientEmail,
		key:      key,
		tokenURL: cfg.TokenURL,
		scope:    scope,
		client:   client,
		now:      time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Exchange signs a fresh assertion and trades it for an access token. The
// returned expiry never lies beyond the assertion's own exp. There is no retry.
func (i *Issuer) Exchange(ctx context.Context) (*oauth2.Token, error) {
	now := i.now()
	exp := now.Add(assertionLifetime)

	claims := jwt.MapClaims{
		"iss":   i.email,
		"aud":   i.tokenURL,
		"scope": i.scope,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return nil, &Error{Kind: KindSign, Err: err}
	}

	form := url.Values{
		"grant_type": {grantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindExchange, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindExchange, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: KindExchange, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:   KindExchange,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &Error{Kind: KindDecode, Detail: "response carries no access_token"}
	}

	expiry := now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn <= 0 || expiry.After(exp) {
		expiry = exp
	}

	logrus.WithFields(logrus.Fields{
		"expires_at": expiry.Format(time.RFC3339),
	}).Debug("issued gateway credential")

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      expiry,
	}, nil
}

// GetAccessToken returns a freshly issued bearer token.
func (i *Issuer) GetAccessToken(ctx context.Context) (string, error) {
	tok, err := i.Exchange(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
