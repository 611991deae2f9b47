// Package attest fingerprints conformance results and signs case reports so
// a downstream scoring service can tie a result to the node that produced it.
package attest

import (
	"crypto/ecdsa"
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyFile is the on-disk attestation key format.
type KeyFile struct {
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// LoadPrivateKey reads an attestation key file.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Address{}, err
	}

	var key KeyFile
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, common.Address{}, err
	}

	privateKey, err := crypto.HexToECDSA(key.PrivateKey)
	if err != nil {
		return nil, common.Address{}, err
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	return privateKey, address, nil
}

// GenerateKeyFile creates a fresh key and writes it to path.
func GenerateKeyFile(path string) error {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}

	publicKeyBytes := crypto.FromECDSAPub(&privateKey.PublicKey)
	keyFile := KeyFile{
		PublicKey:  common.Bytes2Hex(publicKeyBytes),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		PrivateKey: common.Bytes2Hex(crypto.FromECDSA(privateKey)),
	}

	data, err := json.MarshalIndent(keyFile, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
