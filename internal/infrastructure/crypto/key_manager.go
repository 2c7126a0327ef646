// Package crypto provides signing key generation, JWT signing and verification
// primitives, and JWKS rendering for the keytrust service.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

// KeyManagerConfig holds key generation configuration.
type KeyManagerConfig struct {
	// Algorithm is the JWS algorithm minted keys are bound to
	Algorithm constants.JWTAlgorithm
	// Bits is the RSA modulus size
	Bits int
	// KeyValidityPeriod is how long new keys are valid
	KeyValidityPeriod time.Duration
}

// DefaultKeyManagerConfig returns default configuration.
func DefaultKeyManagerConfig() *KeyManagerConfig {
	return &KeyManagerConfig{
		Algorithm:         constants.DefaultJWTAlgorithm,
		Bits:              constants.RSAKeySize,
		KeyValidityPeriod: constants.DefaultKeyValidity,
	}
}

// KeyManager mints new signing keys. It holds no state besides its configuration,
// persistence is the KeyRepository's job.
type KeyManager struct {
	config *KeyManagerConfig
	logger logger.Logger
}

// NewKeyManager creates a new KeyManager.
//
// Parameters:
//   - config: generation settings, nil selects DefaultKeyManagerConfig
//   - log: structured logger
//
// Returns:
//   - *KeyManager: the key manager
func NewKeyManager(config *KeyManagerConfig, log logger.Logger) *KeyManager {
	if config == nil {
		config = DefaultKeyManagerConfig()
	}
	if config.Bits == 0 {
		config.Bits = constants.RSAKeySize
	}
	return &KeyManager{
		config: config,
		logger: log.WithComponent("KeyManager"),
	}
}

// GenerateSigningKey mints a new RSA key pair valid from now for the configured window.
func (km *KeyManager) GenerateSigningKey(ctx context.Context, now time.Time) (*models.SigningKey, error) {
	privateKeyPEM, publicKeyPEM, err := generateRSAKeyPair(km.config.Bits)
	if err != nil {
		km.logger.Error(ctx, "Key pair generation failed", err, logger.Int("bits", km.config.Bits))
		return nil, err
	}

	key := &models.SigningKey{
		KeyID:         uuid.NewString(),
		Algorithm:     string(km.config.Algorithm),
		PublicKeyPEM:  publicKeyPEM,
		PrivateKeyPEM: privateKeyPEM,
		CreatedAt:     now.UTC(),
		ExpiresAt:     now.UTC().Add(km.config.KeyValidityPeriod),
	}

	km.logger.Info(ctx, "Key pair generated",
		logger.String("key_id", key.KeyID),
		logger.String("algorithm", key.Algorithm),
		logger.Time("expires_at", key.ExpiresAt),
	)
	return key, nil
}

func generateRSAKeyPair(bits int) (privateKeyPEM, publicKeyPEM string, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privateKeyBlock := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	privateKeyPEM = string(pem.EncodeToMemory(privateKeyBlock))

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicKeyBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	}
	publicKeyPEM = string(pem.EncodeToMemory(publicKeyBlock))

	return privateKeyPEM, publicKeyPEM, nil
}
