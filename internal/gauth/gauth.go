// Package gauth builds authenticated Google API client options.
package gauth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// ClientOption authenticates with an installed-app OAuth client and a stored
// token when tokenFile is set, or with a service-account key otherwise.
func ClientOption(ctx context.Context, credentialsFile, tokenFile string, scopes ...string) (option.ClientOption, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("google credentials file is required")
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file '%s': %w", credentialsFile, err)
	}

	if tokenFile == "" {
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
		}
		return option.WithCredentials(creds), nil
	}

	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OAuth client credentials: %w", err)
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return option.WithTokenSource(cfg.TokenSource(ctx, tok)), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file '%s': %w", path, err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to decode token file '%s': %w", path, err)
	}
	return &tok, nil
}
