package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements TokenStore using environment variables.
// It honors the same variables the huggingface_hub Python client reads,
// so a token exported for that tooling works here unchanged.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based token store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// envToken reads the token from the conventional variables, HF_TOKEN first
func envToken() string {
	if v := os.Getenv("HF_TOKEN"); v != "" {
		return v
	}
	return os.Getenv("HUGGING_FACE_HUB_TOKEN")
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(token *Token) error {
	return ErrStoreUnavailable
}

// Retrieve gets the token from environment variables
func (e *EnvironmentStore) Retrieve(profile string) (*Token, error) {
	value := envToken()
	if value == "" {
		return nil, ErrTokenNotFound
	}

	// Environment variables don't carry a profile name
	if profile == "" {
		profile = DefaultProfile
	}

	return &Token{
		Profile:      profile,
		Value:        value,
		LastModified: time.Now(),
	}, nil
}

// List returns a single token if environment variables are set
func (e *EnvironmentStore) List() ([]*Token, error) {
	token, err := e.Retrieve("")
	if err != nil {
		return []*Token{}, nil
	}
	return []*Token{token}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment token exists
func (e *EnvironmentStore) Exists(profile string) bool {
	return envToken() != ""
}
