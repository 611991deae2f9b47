package attest

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/accelmark/opcheck/internal/tensor"
	"github.com/ethereum/go-ethereum/crypto"
)

// Attestation binds the digests of a case's result buffers to the signing
// node's address.
type Attestation struct {
	Address         string `json:"address"`
	DeviceDigest    string `json:"deviceDigest"`
	ReferenceDigest string `json:"referenceDigest"`
	Signature       string `json:"signature"`
}

// Fingerprint hashes a result buffer's bytes.
func Fingerprint(buf *tensor.HostBuffer) string {
	return fmt.Sprintf("0x%x", crypto.Keccak256(buf.Bytes()))
}

// Signer signs case results with the node's attestation key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
}

// NewSigner wraps a loaded private key.
func NewSigner(privateKey *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: privateKey}
}

// Attest signs the pair of result digests for one output tensor.
func (s *Signer) Attest(deviceResult, reference *tensor.HostBuffer) (*Attestation, error) {
	deviceDigest := Fingerprint(deviceResult)
	referenceDigest := Fingerprint(reference)

	message := []byte(deviceDigest + "." + referenceDigest)
	signature, err := crypto.Sign(crypto.Keccak256(message), s.privateKey)
	if err != nil {
		return nil, err
	}

	return &Attestation{
		Address:         crypto.PubkeyToAddress(s.privateKey.PublicKey).Hex(),
		DeviceDigest:    deviceDigest,
		ReferenceDigest: referenceDigest,
		Signature:       fmt.Sprintf("0x%x", signature),
	}, nil
}
