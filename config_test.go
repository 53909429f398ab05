package pcmio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/pcmio"
)

func TestLoadConfig(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "office.raw")

	cfg := `
pcms:
  office: "null"
  officedump:
    type: file
    file: ` + dump + `
    format: raw
    slave:
      pcm: "null"
pcm_slaves:
  officelane:
    pcm: "null"
    rate: 32000
`
	require.NoError(t, pcmio.LoadConfig([]byte(cfg)))

	t.Run("alias", func(t *testing.T) {
		p, err := pcmio.Open("office", pcmio.StreamPlayback, 0)
		require.NoError(t, err)
		t.Cleanup(func() { p.Close() })

		assert.Equal(t, "null", p.Name())
		assert.Equal(t, pcmio.TypeNull, p.Type())
	})

	t.Run("structured", func(t *testing.T) {
		p, err := pcmio.Open("officedump", pcmio.StreamPlayback, 0)
		require.NoError(t, err)

		assert.Equal(t, pcmio.TypeFile, p.Type())
		require.NoError(t, p.HwParams(nil))

		n, err := p.WriteI(make([]byte, 1024), 256)
		require.NoError(t, err)
		assert.Equal(t, 256, n)
		require.NoError(t, p.Close())

		data, err := os.ReadFile(dump)
		require.NoError(t, err)
		assert.Len(t, data, 1024)
	})

	t.Run("slave store", func(t *testing.T) {
		var rate int
		field := &pcmio.SlaveField{Name: "rate", Int: &rate}

		name, err := pcmio.ParseSlaveDefinition("officelane", field)
		require.NoError(t, err)
		assert.Equal(t, "null", name)
		assert.Equal(t, 32000, rate)
	})
}

func TestLoadConfigMalformed(t *testing.T) {
	err := pcmio.LoadConfig([]byte("pcms: [\n  broken"))
	assert.ErrorIs(t, err, pcmio.ErrInvalidArg)
}

func TestLoadConfigOverride(t *testing.T) {
	require.NoError(t, pcmio.LoadConfig([]byte(`pcms: {deskout: "nosuchpcm"}`)))

	_, err := pcmio.Open("deskout", pcmio.StreamPlayback, 0)
	require.ErrorIs(t, err, pcmio.ErrNotFound)

	require.NoError(t, pcmio.LoadConfig([]byte(`pcms: {deskout: "null"}`)))

	p, err := pcmio.Open("deskout", pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	assert.Equal(t, "null", p.Name())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcmio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`pcms: {fromfile: "null"}`), 0o644))

	require.NoError(t, pcmio.LoadConfigFile(path))

	p, err := pcmio.Open("fromfile", pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	assert.Equal(t, pcmio.TypeNull, p.Type())

	err = pcmio.LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
