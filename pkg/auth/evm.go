// Package auth verifies EVM wallet ownership via EIP-191 personal_sign
// challenges. Every user-initiated bridge operation carries a signature
// over a fixed challenge string; the recovered signer must match the
// EVM address linked to the native wallet.
package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ClaimMessage is the challenge signed to link a native address to the
// signer's EVM wallet.
func ClaimMessage(native string) string {
	return fmt.Sprintf("I hereby claim that the native address %q is mine", native)
}

// WithdrawMessage is the challenge signed to withdraw PAW to native.
// Amount is the user-facing decimal string.
func WithdrawMessage(amount, native string) string {
	return fmt.Sprintf("Withdraw %s PAW to my wallet %q", amount, native)
}

// SwapMessage is the challenge signed to convert deposited PAW to wPAW.
func SwapMessage(amount, native string) string {
	return fmt.Sprintf("Swap %s PAW for wPAW with PAW I deposited from my wallet %q", amount, native)
}

// RecoverSigner verifies an EIP-191 personal_sign signature over message
// and returns the recovered address.
func RecoverSigner(message, signature string) (common.Address, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}

	if len(sigBytes) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: expected 65, got %d", len(sigBytes))
	}

	// The recovery id (v) may be 0, 1, 27 or 28; normalize to 0 or 1.
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	prefixedMsg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	msgHash := crypto.Keccak256Hash([]byte(prefixedMsg))

	pubKey, err := crypto.SigToPub(msgHash.Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignedBy checks that signature over message recovers to the
// expected EVM address. Addresses are compared in checksummed form.
func VerifySignedBy(message, signature, expected string) error {
	recovered, err := RecoverSigner(message, signature)
	if err != nil {
		return err
	}
	if recovered.Hex() != NormalizeAddress(expected) {
		return fmt.Errorf("signature recovers to %s, expected %s", recovered.Hex(), NormalizeAddress(expected))
	}
	return nil
}

// ValidateEVMAddress checks if a string is a well-formed EVM address.
func ValidateEVMAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	if len(address) != 42 {
		return false
	}
	_, err := hex.DecodeString(address[2:])
	return err == nil
}

// NormalizeAddress returns the checksummed (EIP-55) form of an address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
