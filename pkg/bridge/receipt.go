package bridge

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ReceiptSigner produces mint receipts: off-chain authorisations that
// let a user mint exactly the swapped amount of wPAW on-chain. The
// wrapped contract verifies the signature and consumes the uuid, so a
// receipt can be redeemed at most once.
type ReceiptSigner struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
	args    abi.Arguments
}

// NewReceiptSigner parses the bridge signing key (hex, 0x optional).
func NewReceiptSigner(privateKeyHex string, chainID int64) (*ReceiptSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}

	return &ReceiptSigner{
		key:     key,
		chainID: big.NewInt(chainID),
		args: abi.Arguments{
			{Type: addressType},
			{Type: uint256Type},
			{Type: uint256Type},
			{Type: uint256Type},
		},
	}, nil
}

// Address returns the signer's EVM address, for contract configuration.
func (s *ReceiptSigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// Sign builds abi.encode(address, uint256 amount, uint256 uuid,
// uint256 chainId), hashes it with keccak256, and personal_signs the
// digest. amountRaw is in the wrapped token's 18-decimal representation.
func (s *ReceiptSigner) Sign(evmAddress string, amountRaw *big.Int, uuid int64) (string, error) {
	packed, err := s.args.Pack(
		common.HexToAddress(evmAddress),
		amountRaw,
		big.NewInt(uuid),
		s.chainID,
	)
	if err != nil {
		return "", fmt.Errorf("pack receipt payload: %w", err)
	}

	digest := crypto.Keccak256(packed)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(digest), digest)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}

	// Solidity's ecrecover expects v in {27, 28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
