package encryption

import (
	"fmt"

	"pv-go/internal/config"
	"pv-go/internal/vault"
)

// NewEncryptorFromConfig picks the at-rest cipher implementation.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (vault.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
