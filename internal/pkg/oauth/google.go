package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/telecare/consult-gate/internal/domain/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleService is the doctor identity provider
type GoogleService interface {
	// GenerateState returns a random state value for the consent redirect.
	GenerateState() (string, error)
	// RedirectURL builds the Google consent URL carrying state.
	RedirectURL(state string) string
	// Exchange trades an authorization code for an OAuth2 token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// Profile fetches the signed-in account's email and id.
	Profile(ctx context.Context, token *oauth2.Token) (auth.GoogleLoginRequest, error)
}

type GoogleServiceImpl struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleService(clientID string, clientSecret string, redirectURL string, scopes []string) GoogleService {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
	return &GoogleServiceImpl{config: config, userInfoURL: googleUserInfoURL}
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// GenerateState implements GoogleService.
func (g *GoogleServiceImpl) GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RedirectURL implements GoogleService.
func (g *GoogleServiceImpl) RedirectURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange implements GoogleService.
func (g *GoogleServiceImpl) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// Profile implements GoogleService.
func (g *GoogleServiceImpl) Profile(ctx context.Context, token *oauth2.Token) (auth.GoogleLoginRequest, error) {
	client := g.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return auth.GoogleLoginRequest{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return auth.GoogleLoginRequest{}, fmt.Errorf("failed to fetch google profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return auth.GoogleLoginRequest{}, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.GoogleLoginRequest{}, fmt.Errorf("failed to decode google profile: %w", err)
	}

	return auth.GoogleLoginRequest{
		Email:         info.Email,
		GoogleID:      info.ID,
		VerifiedEmail: info.VerifiedEmail,
	}, nil
}
