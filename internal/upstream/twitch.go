package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/openarcade/scoreboard/internal/domain"
	"github.com/openarcade/scoreboard/internal/errors"
)

const usersURL = "https://api.twitch.tv/helix/users"

// Twitch implements Verifier against the Twitch OAuth2 code flow: the
// authorization code is exchanged for an access token, then the linked
// accounts are fetched from the Helix users endpoint.
type Twitch struct {
	config   *oauth2.Config
	client   *http.Client
	usersURL string
}

func NewTwitch(clientID, clientSecret, redirectURI string) *Twitch {
	return &Twitch{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     twitch.Endpoint,
		},
		client:   http.DefaultClient,
		usersURL: usersURL,
	}
}

func (t *Twitch) ExchangeCodeForIdentities(ctx context.Context, code string) ([]domain.Identity, error) {
	token, err := t.config.Exchange(ctx, code)
	if err != nil {
		// The raw exchange error may carry the upstream response; log it,
		// never surface it to the caller.
		slog.ErrorContext(ctx, "upstream: code exchange failed", "error", err)
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("identity verification failed"))
	}

	identities, err := t.fetchUsers(ctx, token.AccessToken)
	if err != nil {
		slog.ErrorContext(ctx, "upstream: users fetch failed", "error", err)
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("identity fetch failed"))
	}

	return identities, nil
}

func (t *Twitch) fetchUsers(ctx context.Context, accessToken string) ([]domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.usersURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Client-Id", t.config.ClientID)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var users struct {
		Data []struct {
			ID          string `json:"id"`
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
			ImageURL    string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &users); err != nil || users.Data == nil {
		return nil, fmt.Errorf("unexpected users response: status=%d body=%s", resp.StatusCode, body)
	}

	identities := make([]domain.Identity, 0, len(users.Data))
	for _, u := range users.Data {
		identities = append(identities, domain.Identity{
			ID:    u.ID,
			Name:  u.DisplayName,
			Image: u.ImageURL,
			Link:  fmt.Sprintf("https://twitch.tv/%s/", u.Login),
		})
	}

	return identities, nil
}
