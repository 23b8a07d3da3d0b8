package core

import "strings"

type APICredentials struct {
	Key        string
	Secret     string
	CustomerID string
}

// SigningContext holds the process-wide secrets. It is built once at startup
// and passed explicitly to every signer.
type SigningContext struct {
	EOSAccount    string
	EOSPrivateKey string
	APIKeys       map[string]APICredentials
}

func (c SigningContext) HasEOS() bool {
	return strings.TrimSpace(c.EOSAccount) != "" && strings.TrimSpace(c.EOSPrivateKey) != ""
}

func (c SigningContext) RequireEOS() error {
	if strings.TrimSpace(c.EOSAccount) == "" {
		return Configf("eos account is required")
	}
	if strings.TrimSpace(c.EOSPrivateKey) == "" {
		return Configf("eos private key is required")
	}
	return nil
}

func (c SigningContext) Credentials(venue string) (APICredentials, error) {
	creds, ok := c.APIKeys[venue]
	if !ok || strings.TrimSpace(creds.Key) == "" || strings.TrimSpace(creds.Secret) == "" {
		return APICredentials{}, Configf("%s api key and secret are required", venue)
	}
	return creds, nil
}
