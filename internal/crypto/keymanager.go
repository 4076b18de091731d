package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// KeyConfig names where the signing key comes from.
type KeyConfig struct {
	// RawPrivateKey is a hex key, with or without 0x. It wins when set.
	RawPrivateKey string
	// EncryptedKeyPath is a key file written by EncryptKey.
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadKey resolves the signing key: the raw key first, then the encrypted
// key file.
func LoadKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	var keyHex string
	switch {
	case cfg.RawPrivateKey != "":
		keyHex = cfg.RawPrivateKey
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading key file: %w", err)
		}
		keyHex, err = DecryptKey(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("crypto: no private key source configured")
	}

	keyBytes, err := decodeKeyHex(keyHex)
	if err != nil {
		return nil, err
	}
	key, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}
	return key, nil
}

// Address returns the account address of key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return ethcrypto.PubkeyToAddress(key.PublicKey)
}

func addressOf(keyBytes []byte) (string, error) {
	key, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return "", fmt.Errorf("crypto: parse private key: %w", err)
	}
	return Address(key).Hex(), nil
}
