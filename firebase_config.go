package call

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
)

var ErrFirebaseConfig = errors.New("firebase credentials are not configured")

type serviceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain"`
}

// GetFirebaseConfiguration resolves the app config and credentials from the
// environment. In order: the Firestore emulator (no credentials), a
// credentials file, then the inline FIREBASE_* service account variables.
func GetFirebaseConfiguration() (*firebase.Config, []option.ClientOption, error) {
	projectID := os.Getenv("FIREBASE_PROJECT_ID")
	config := &firebase.Config{ProjectID: projectID}

	if os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		if projectID == "" {
			config.ProjectID = "demo-call"
		}
		return config, []option.ClientOption{option.WithoutAuthentication()}, nil
	}

	if path := os.Getenv("FIREBASE_CREDENTIALS_FILE"); path != "" {
		return config, []option.ClientOption{option.WithCredentialsFile(path)}, nil
	}

	account := serviceAccount{
		Type:                    os.Getenv("FIREBASE_TYPE"),
		ProjectID:               projectID,
		PrivateKeyID:            os.Getenv("FIREBASE_PRIVATE_KEY_ID"),
		PrivateKey:              strings.ReplaceAll(os.Getenv("FIREBASE_PRIVATE_KEY"), "\\n", "\n"),
		ClientEmail:             os.Getenv("FIREBASE_CLIENT_EMAIL"),
		ClientID:                os.Getenv("FIREBASE_CLIENT_ID"),
		AuthURI:                 os.Getenv("FIREBASE_AUTH_URI"),
		TokenURI:                os.Getenv("FIREBASE_AUTH_TOKEN_URI"),
		AuthProviderX509CertURL: os.Getenv("FIREBASE_AUTH_PROVIDER_X509_CERT_URL"),
		ClientX509CertURL:       os.Getenv("FIREBASE_AUTH_CLIENT_X509_CERT_URL"),
		UniverseDomain:          os.Getenv("FIREBASE_UNIVERSE_DOMAIN"),
	}
	if account.ProjectID == "" || account.PrivateKey == "" || account.ClientEmail == "" {
		return nil, nil, ErrFirebaseConfig
	}
	if account.Type == "" {
		account.Type = "service_account"
	}

	accountBytes, err := json.Marshal(account)
	if err != nil {
		return nil, nil, err
	}
	return config, []option.ClientOption{option.WithCredentialsJSON(accountBytes)}, nil
}
