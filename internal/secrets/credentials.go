package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/recents/internal/shared"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const credentialsSchemaURL = "https://recents.desertthunder.dev/schemas/credentials.json"

const credentialsSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["client_id", "client_secret"],
	"properties": {
		"client_id": {"type": "string", "minLength": 1},
		"client_secret": {"type": "string", "minLength": 1}
	}
}`

var credentialsValidator = mustCompile(credentialsSchemaURL, credentialsSchema)

// Credentials are the Spotify application credentials. They are loaded once per run and never written by the engine.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func mustCompile(url, schema string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema %s: %v", url, err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("failed to add schema %s: %v", url, err))
	}
	return c.MustCompile(url)
}

// ValidateCredentials checks a raw credential record against the credential schema.
func ValidateCredentials(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: credential record is not JSON: %v", shared.ErrInvalidCredentials, err)
	}
	if err := credentialsValidator.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}
	return nil
}

// LoadCredentials reads and validates the credential record at name.
func LoadCredentials(ctx context.Context, s Store, name string) (Credentials, error) {
	data, err := s.Get(ctx, name)
	if errors.Is(err, shared.ErrSecretNotFound) {
		return Credentials{}, fmt.Errorf("%w: no credential record at %q", shared.ErrMissingCredentials, name)
	}
	if err != nil {
		return Credentials{}, err
	}

	if err := ValidateCredentials(data); err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}
	return creds, nil
}

// SaveCredentials validates and writes the credential record at name.
func SaveCredentials(ctx context.Context, s Store, name string, creds Credentials) error {
	data, err := shared.MarshalJSON(creds, false)
	if err != nil {
		return err
	}
	if err := ValidateCredentials(data); err != nil {
		return err
	}
	return s.Put(ctx, name, data)
}
