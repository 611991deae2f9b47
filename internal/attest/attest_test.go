package attest

import (
	"path/filepath"
	"testing"

	"github.com/accelmark/opcheck/internal/tensor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, GenerateKeyFile(path))

	privateKey, address, err := LoadPrivateKey(path)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(privateKey.PublicKey), address)
}

func TestLoadPrivateKeyMissingFile(t *testing.T) {
	_, _, err := LoadPrivateKey(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestAttest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, GenerateKeyFile(path))
	privateKey, address, err := LoadPrivateKey(path)
	require.NoError(t, err)

	desc, err := tensor.NewDescriptor("grad_in", tensor.Float32, tensor.Shape{4})
	require.NoError(t, err)
	deviceResult := tensor.NewHostBuffer(desc)
	reference := tensor.NewHostBuffer(desc)
	deviceResult.Float32s()[0] = 1
	reference.Float32s()[0] = 1

	signer := NewSigner(privateKey)
	att, err := signer.Attest(deviceResult, reference)
	require.NoError(t, err)

	assert.Equal(t, address.Hex(), att.Address)
	assert.Equal(t, att.DeviceDigest, att.ReferenceDigest, "identical buffers share a digest")

	t.Run("fingerprint is content addressed", func(t *testing.T) {
		assert.Equal(t, Fingerprint(deviceResult), Fingerprint(reference))
		reference.Float32s()[1] = 3
		assert.NotEqual(t, Fingerprint(deviceResult), Fingerprint(reference))
	})

	t.Run("signature recovers the signing key", func(t *testing.T) {
		message := []byte(att.DeviceDigest + "." + att.ReferenceDigest)
		sig := common.FromHex(att.Signature)

		pub, err := crypto.SigToPub(crypto.Keccak256(message), sig)
		require.NoError(t, err)
		assert.Equal(t, address, crypto.PubkeyToAddress(*pub))
	})
}
