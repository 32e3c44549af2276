package app

import (
	"errors"
	"fmt"

	"frontdesk/cmd/security/sealer"
)

// ValidateSecurityConfig enforces the credential sealing policy at startup.
// Fail-fast: an agent told to seal credentials never falls back to writing them in the clear.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireSealedCredentials {
		return nil
	}

	if _, err := sealer.FromEnv(); err != nil {
		switch {
		case errors.Is(err, sealer.ErrKeyMissing):
			return fmt.Errorf("security policy: FRONTDESK_REQUIRE_SEALED_CREDENTIALS=true but %s is missing", sealer.KeyEnv)
		case errors.Is(err, sealer.ErrKeyTooShort):
			return fmt.Errorf("security policy: FRONTDESK_REQUIRE_SEALED_CREDENTIALS=true but %s is too short (min %d bytes)", sealer.KeyEnv, sealer.MinKeyBytes)
		default:
			return err
		}
	}

	if cfg.CredentialBackend == BackendMemory {
		return errors.New("security policy: FRONTDESK_REQUIRE_SEALED_CREDENTIALS=true is meaningless with the memory backend")
	}
	return nil
}

// credentialSealer returns the configured Sealer, or nil when no key is set.
func credentialSealer() (*sealer.Sealer, error) {
	if !sealer.Enabled() {
		return nil, nil
	}
	s, err := sealer.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	return s, nil
}
