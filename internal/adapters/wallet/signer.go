// Package wallet provides a local ed25519 transaction signer.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"dexpilot/internal/ports"
)

// Transactions arrive serialized with a one-byte signature count, the
// signature slots, then the message. A single-signer transaction therefore
// carries its message from byte 65 onward.
const (
	signatureSlotOffset = 1
	messageOffset       = signatureSlotOffset + ed25519.SignatureSize
)

// LocalSigner signs transactions with an in-process ed25519 key.
type LocalSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  string
}

// Config holds configuration for the local signer.
type Config struct {
	// SeedHex is the hex-encoded 32-byte ed25519 seed.
	SeedHex string
	// PublicKey is the wallet's base58 address, used as the swap payer.
	PublicKey string
}

// New creates a signer from a hex-encoded seed.
func New(cfg Config) (*LocalSigner, error) {
	if cfg.PublicKey == "" {
		return nil, fmt.Errorf("public key is required for local signer")
	}
	seed, err := hex.DecodeString(cfg.SeedHex)
	if err != nil {
		return nil, fmt.Errorf("decoding signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &LocalSigner{
		privateKey: ed25519.NewKeyFromSeed(seed),
		publicKey:  cfg.PublicKey,
	}, nil
}

// Sign signs a serialized single-signer transaction and returns a copy with
// the signature slot filled in. The input is not modified.
func (s *LocalSigner) Sign(ctx context.Context, unsignedTx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("signing aborted: %w: %w", ports.ErrSignatureDenied, err)
	}
	if len(unsignedTx) < messageOffset {
		return nil, fmt.Errorf("transaction too short to sign (%d bytes): %w", len(unsignedTx), ports.ErrSignatureDenied)
	}

	signed := make([]byte, len(unsignedTx))
	copy(signed, unsignedTx)

	signature := ed25519.Sign(s.privateKey, signed[messageOffset:])
	copy(signed[signatureSlotOffset:messageOffset], signature)
	return signed, nil
}

// PublicKey returns the wallet address transactions are built for.
func (s *LocalSigner) PublicKey() string {
	return s.publicKey
}
