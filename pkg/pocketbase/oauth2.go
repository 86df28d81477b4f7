package pocketbase

import (
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/thijsmie/pocketbase/pkg/models"
)

// NewOAuth2Payload builds the body of an OAuth2 code exchange for provider p.
// The PKCE verifier handed out by the server is reused; when there is none a
// new one is generated.
func NewOAuth2Payload(p models.AuthProvider, code, redirectURL string) models.OAuth2Payload {
	verifier := p.CodeVerifier
	if verifier == "" {
		verifier = oauth2.GenerateVerifier()
	}
	return models.OAuth2Payload{
		Provider:     p.Name,
		Code:         code,
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
	}
}

// OAuth2AuthURL returns the provider URL to send the user to. The redirect
// URL is appended, and the S256 code challenge when the server did not put
// one in already.
func OAuth2AuthURL(p models.AuthProvider, redirectURL string) (string, error) {
	u, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid auth url of %s: %w", p.Name, err)
	}

	q := u.Query()
	q.Set("redirect_uri", redirectURL)
	if q.Get("code_challenge") == "" && p.CodeVerifier != "" {
		q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(p.CodeVerifier))
		q.Set("code_challenge_method", "S256")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
