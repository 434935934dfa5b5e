package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrTokenRevoked signals a token whose session was revoked or whose account is disabled.
var ErrTokenRevoked = errors.New("auth: firebase id token revoked")

// FirebaseVerifier checks ID tokens against the Admin SDK. FIREBASE_AUTH_EMULATOR_HOST switches it
// to the local emulator.
type FirebaseVerifier struct {
	client       *firebaseauth.Client
	checkRevoked bool
}

// FirebaseOption customises NewFirebaseVerifier.
type FirebaseOption func(*firebaseSettings)

type firebaseSettings struct {
	credentialsFile string
	checkRevoked    bool
	clientOpts      []option.ClientOption
}

// WithCredentialsFile loads a service account key instead of application default credentials.
func WithCredentialsFile(path string) FirebaseOption {
	return func(s *firebaseSettings) { s.credentialsFile = path }
}

// WithRevocationCheck makes every verification look up the user record so that signed-out and
// disabled accounts are rejected before their tokens expire. It costs one Auth API call per request.
func WithRevocationCheck(enabled bool) FirebaseOption {
	return func(s *firebaseSettings) { s.checkRevoked = enabled }
}

func WithFirebaseClientOptions(opts ...option.ClientOption) FirebaseOption {
	return func(s *firebaseSettings) { s.clientOpts = append(s.clientOpts, opts...) }
}

func NewFirebaseVerifier(ctx context.Context, projectID string, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var settings firebaseSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	clientOpts := settings.clientOpts
	if settings.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(settings.credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client, checkRevoked: settings.checkRevoked}, nil
}

// VerifyIDToken implements TokenVerifier. Expired and revoked tokens come back as ErrTokenExpired
// and ErrTokenRevoked.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}
	var (
		token *firebaseauth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = v.client.VerifyIDToken(ctx, idToken)
	}
	switch {
	case err == nil:
		return token, nil
	case firebaseauth.IsIDTokenExpired(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	default:
		return nil, err
	}
}
