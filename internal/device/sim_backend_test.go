package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBackend(t *testing.T) *SimBackend {
	t.Helper()
	b := NewSimBackend(zap.NewNop())
	require.NoError(t, b.Initialize())
	t.Cleanup(func() { _ = b.Cleanup() })
	return b
}

func TestSimBackendMemory(t *testing.T) {
	b := newTestBackend(t)

	t.Run("upload download roundtrip", func(t *testing.T) {
		buf, err := b.Malloc(8)
		require.NoError(t, err)
		assert.Equal(t, 8, buf.Size())

		src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		require.NoError(t, b.MemcpyH2D(buf, src))

		dst := make([]byte, 8)
		require.NoError(t, b.MemcpyD2H(dst, buf))
		assert.Equal(t, src, dst)
		require.NoError(t, b.Free(buf))
	})

	t.Run("allocations are zero filled", func(t *testing.T) {
		buf, err := b.Malloc(4)
		require.NoError(t, err)
		dst := []byte{0xff, 0xff, 0xff, 0xff}
		require.NoError(t, b.MemcpyD2H(dst, buf))
		assert.Equal(t, []byte{0, 0, 0, 0}, dst)
		require.NoError(t, b.Free(buf))
	})

	t.Run("size mismatch is rejected", func(t *testing.T) {
		buf, err := b.Malloc(8)
		require.NoError(t, err)
		assert.Error(t, b.MemcpyH2D(buf, make([]byte, 4)))
		assert.Error(t, b.MemcpyD2H(make([]byte, 16), buf))
		require.NoError(t, b.Free(buf))
	})

	t.Run("double free is an error", func(t *testing.T) {
		buf, err := b.Malloc(4)
		require.NoError(t, err)
		require.NoError(t, b.Free(buf))
		assert.Error(t, b.Free(buf))
	})

	t.Run("memory budget is enforced", func(t *testing.T) {
		_, err := b.Malloc(simTotalMemory + 1)
		assert.Error(t, err)
	})

	t.Run("zero-size allocation is rejected", func(t *testing.T) {
		_, err := b.Malloc(0)
		assert.Error(t, err)
	})
}

func TestSimBackendLaunch(t *testing.T) {
	RegisterKernel("test_double_f32", func(params any, args [][]byte) error {
		for i := range args[0] {
			args[0][i] *= 2
		}
		return nil
	})

	b := newTestBackend(t)

	t.Run("kernel mutates device memory", func(t *testing.T) {
		buf, err := b.Malloc(4)
		require.NoError(t, err)
		require.NoError(t, b.MemcpyH2D(buf, []byte{1, 2, 3, 4}))

		require.NoError(t, b.Launch(context.Background(), "test_double_f32", nil, []Buffer{buf}))

		dst := make([]byte, 4)
		require.NoError(t, b.MemcpyD2H(dst, buf))
		assert.Equal(t, []byte{2, 4, 6, 8}, dst)
		require.NoError(t, b.Free(buf))
	})

	t.Run("unknown kernel fails", func(t *testing.T) {
		err := b.Launch(context.Background(), "no_such_kernel", nil, nil)
		assert.ErrorContains(t, err, "not present on device")
	})

	t.Run("cancelled context fails", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, b.Launch(ctx, "test_double_f32", nil, nil))
	})
}

func TestManager(t *testing.T) {
	t.Run("selects the simulator by default", func(t *testing.T) {
		m, err := NewManager("", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "sim", m.Backend().Name())
		assert.NotEmpty(t, m.DeviceInfo().Name)
		require.NoError(t, m.Cleanup())
	})

	t.Run("rejects unknown backends", func(t *testing.T) {
		_, err := NewManager("tpu", zap.NewNop())
		assert.ErrorContains(t, err, "unknown device backend")
	})

	t.Run("cleanup is final", func(t *testing.T) {
		m, err := NewManager("sim", zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, m.Cleanup())
		assert.Nil(t, m.Backend())
		assert.NoError(t, m.Cleanup())
	})
}
