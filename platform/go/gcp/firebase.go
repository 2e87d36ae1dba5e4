package gcp

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// CredentialsPathEnv points at a service-account JSON file for local runs;
// in deployed environments ADC is used and the variable stays unset.
const CredentialsPathEnv = "FIREBASE_CREDENTIALS_FILE"

// NewApp creates a Firebase App instance, using an explicit credentials file
// when one is configured.
func NewApp(ctx context.Context) (*firebase.App, error) {
	if path, found := os.LookupEnv(CredentialsPathEnv); found && path != "" {
		return firebase.NewApp(ctx, nil, option.WithCredentialsFile(path))
	}
	return firebase.NewApp(ctx, nil)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context) (*firebase.App, *firebaseauth.Client, error) {
	app, err := NewApp(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase app: %w", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase auth: %w", err)
	}

	return app, fbAuth, nil
}
