package salesforce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"sftocsv/internal/secret"
)

// Credentials identify a connected app using the client-credentials flow.
type Credentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// TokenURL returns the OAuth token endpoint for the org.
func (c Credentials) TokenURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/services/oauth2/token"
}

// FetchToken exchanges client credentials for a fresh access token.
func FetchToken(ctx context.Context, creds Credentials) (string, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return "", &TokenRequestError{Err: errors.New("client id and secret are required")}
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL(),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if creds.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, creds.HTTPClient)
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return "", &TokenRequestError{StatusCode: status, Body: string(re.Body), Err: err}
		}
		return "", &TokenRequestError{Err: err}
	}
	return tok.AccessToken, nil
}

// CollectToken returns the token cached under tag, fetching and caching a
// new one when the store has none.
func CollectToken(ctx context.Context, store secret.SecretStore, tag string, creds Credentials) (string, error) {
	if tag == "" {
		tag = secret.DefaultTag
	}
	cached, err := store.Get(tag)
	if err != nil {
		return "", fmt.Errorf("read cached token: %w", err)
	}
	if len(cached) > 0 {
		return string(cached), nil
	}

	token, err := FetchToken(ctx, creds)
	if err != nil {
		return "", err
	}
	if err := store.Set(tag, []byte(token)); err != nil {
		return "", fmt.Errorf("cache token: %w", err)
	}
	return token, nil
}
