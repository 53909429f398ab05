package pcmio_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/gen2brain/pcmio"
)

func openNullPCM(t *testing.T, stream pcmio.Stream) *pcmio.PCM {
	t.Helper()

	p, err := pcmio.Open("null", stream, 0)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	return p
}

func TestPCMIdentity(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	assert.Equal(t, "null", p.Name())
	assert.Equal(t, pcmio.TypeNull, p.Type())
	assert.Equal(t, pcmio.StreamPlayback, p.Stream())
	assert.Equal(t, pcmio.Mode(0), p.Mode())

	fd, events := p.PollDescriptor()
	assert.GreaterOrEqual(t, fd, 0)
	assert.Equal(t, int16(unix.POLLOUT), events)

	c := openNullPCM(t, pcmio.StreamCapture)

	_, events = c.PollDescriptor()
	assert.Equal(t, int16(unix.POLLIN), events)
}

func TestPCMHwParamsDefaults(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	params := &pcmio.HWParams{}
	require.NoError(t, p.HwParams(params))

	assert.Equal(t, pcmio.AccessRWInterleaved, params.Access)
	assert.Equal(t, pcmio.FormatS16LE, params.Format)
	assert.Equal(t, 2, params.Channels)
	assert.Equal(t, 48000, params.Rate)
	assert.Equal(t, 1024, params.PeriodSize)
	assert.Equal(t, 4096, params.BufferSize)
	assert.Equal(t, 48000, params.RateNum)
	assert.Equal(t, 1, params.RateDen)
	assert.Equal(t, 16, params.Msbits)
	assert.Equal(t, 21333, params.PeriodTime)

	assert.Equal(t, pcmio.StatePrepared, p.State())
}

func TestPCMHwParamsDerivation(t *testing.T) {
	t.Run("period from buffer", func(t *testing.T) {
		p := openNullPCM(t, pcmio.StreamPlayback)

		params := &pcmio.HWParams{BufferSize: 8192}
		require.NoError(t, p.HwParams(params))
		assert.Equal(t, 2048, params.PeriodSize)
		assert.Equal(t, 8192, params.BufferSize)
	})

	t.Run("buffer from period", func(t *testing.T) {
		p := openNullPCM(t, pcmio.StreamPlayback)

		params := &pcmio.HWParams{PeriodSize: 512}
		require.NoError(t, p.HwParams(params))
		assert.Equal(t, 512, params.PeriodSize)
		assert.Equal(t, 2048, params.BufferSize)
	})
}

func TestPCMHwParamsValidation(t *testing.T) {
	tests := []struct {
		name   string
		params pcmio.HWParams
	}{
		{"format without width", pcmio.HWParams{Format: pcmio.FormatMpeg}},
		{"negative channels", pcmio.HWParams{Channels: -1}},
		{"negative rate", pcmio.HWParams{Rate: -44100}},
		{"period above buffer", pcmio.HWParams{PeriodSize: 8192, BufferSize: 4096}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openNullPCM(t, pcmio.StreamPlayback)

			params := tt.params
			assert.ErrorIs(t, p.HwParams(&params), pcmio.ErrInvalidArg)
		})
	}
}

func TestPCMOpsBeforeSetup(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	assert.ErrorIs(t, p.Prepare(), pcmio.ErrBadState)
	assert.ErrorIs(t, p.Reset(), pcmio.ErrBadState)
	assert.ErrorIs(t, p.Start(), pcmio.ErrBadState)
	assert.ErrorIs(t, p.Drop(), pcmio.ErrBadState)
	assert.ErrorIs(t, p.Drain(), pcmio.ErrBadState)
	assert.ErrorIs(t, p.Pause(true), pcmio.ErrBadState)
	assert.ErrorIs(t, p.SwParams(nil), pcmio.ErrBadState)
	assert.ErrorIs(t, p.HwFree(), pcmio.ErrBadState)

	_, err := p.Delay()
	assert.ErrorIs(t, err, pcmio.ErrBadState)

	_, err = p.AvailUpdate()
	assert.ErrorIs(t, err, pcmio.ErrBadState)

	_, err = p.Rewind(1)
	assert.ErrorIs(t, err, pcmio.ErrBadState)

	_, err = p.MmapForward(1)
	assert.ErrorIs(t, err, pcmio.ErrBadState)

	_, err = p.WriteI(make([]byte, 16), 4)
	assert.ErrorIs(t, err, pcmio.ErrBadState)
}

func TestPCMLifecycle(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	assert.Equal(t, pcmio.StateOpen, p.State())

	require.NoError(t, p.HwParams(nil))
	assert.Equal(t, pcmio.StatePrepared, p.State())

	require.NoError(t, p.Start())
	assert.Equal(t, pcmio.StateRunning, p.State())

	// A running stream cannot be started or prepared again.
	assert.ErrorIs(t, p.Start(), pcmio.ErrBadState)
	assert.ErrorIs(t, p.Prepare(), pcmio.ErrBadState)

	require.NoError(t, p.Pause(true))
	assert.Equal(t, pcmio.StatePaused, p.State())

	require.NoError(t, p.Pause(false))
	assert.Equal(t, pcmio.StateRunning, p.State())

	require.NoError(t, p.Drop())
	assert.Equal(t, pcmio.StatePrepared, p.State())

	assert.ErrorIs(t, p.Pause(true), pcmio.ErrBadState)

	// The first written frames start the stream.
	n, err := p.WriteI(make([]byte, 4096), 1024)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	assert.Equal(t, pcmio.StateRunning, p.State())

	require.NoError(t, p.Drain())
	assert.Equal(t, pcmio.StatePrepared, p.State())

	require.NoError(t, p.HwFree())
	assert.Equal(t, pcmio.StateOpen, p.State())
	assert.ErrorIs(t, p.HwFree(), pcmio.ErrBadState)
}

func TestPCMHwParamsWhileRunning(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	require.NoError(t, p.HwParams(nil))
	require.NoError(t, p.Start())

	assert.ErrorIs(t, p.HwParams(nil), pcmio.ErrBadState)
	assert.ErrorIs(t, p.HwFree(), pcmio.ErrBadState)
}

func TestPCMConversions(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	// Nothing is installed yet, so widths are unknown.
	assert.Equal(t, 0, p.BytesToFrames(128))
	assert.Equal(t, 0, p.FramesToBytes(32))
	assert.Equal(t, 0, p.BytesToSamples(128))

	require.NoError(t, p.HwParams(nil))

	assert.Equal(t, 40, p.FramesToBytes(10))
	assert.Equal(t, 10, p.BytesToFrames(40))
	assert.Equal(t, 6, p.SamplesToBytes(3))
	assert.Equal(t, 3, p.BytesToSamples(6))
}

func TestPCMSwParams(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)
	require.NoError(t, p.HwParams(nil))

	sw := &pcmio.SWParams{}
	require.NoError(t, p.SwParams(sw))

	assert.Equal(t, 1, sw.PeriodStep)
	assert.Equal(t, 1024, sw.AvailMin)
	assert.Equal(t, 1, sw.XferAlign)
	assert.Equal(t, uint64(1)<<62, sw.Boundary)
}

func TestPCMStatus(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)
	require.NoError(t, p.HwParams(nil))

	st, err := p.Status()
	require.NoError(t, err)
	assert.Equal(t, pcmio.StatePrepared, st.State)
	assert.Equal(t, 4096, st.Avail)
	assert.Equal(t, 4096, st.AvailMax)
	assert.Equal(t, 0, st.Delay)

	delay, err := p.Delay()
	require.NoError(t, err)
	assert.Equal(t, 0, delay)

	avail, err := p.AvailUpdate()
	require.NoError(t, err)
	assert.Equal(t, 4096, avail)
}

func TestPCMPositionOps(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)
	require.NoError(t, p.HwParams(nil))

	n, err := p.Rewind(16)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	n, err = p.Rewind(0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = p.Rewind(-1)
	assert.ErrorIs(t, err, pcmio.ErrInvalidArg)

	n, err = p.MmapForward(32)
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	_, err = p.MmapForward(-2)
	assert.ErrorIs(t, err, pcmio.ErrInvalidArg)

	require.NoError(t, p.Reset())
}

func TestPCMNonblockToggle(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	assert.Equal(t, pcmio.Mode(0), p.Mode()&pcmio.ModeNonblock)

	require.NoError(t, p.Nonblock(true))
	assert.Equal(t, pcmio.ModeNonblock, p.Mode()&pcmio.ModeNonblock)

	require.NoError(t, p.Nonblock(false))
	assert.Equal(t, pcmio.Mode(0), p.Mode()&pcmio.ModeNonblock)
}

func TestPCMWait(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)
	require.NoError(t, p.HwParams(nil))

	ready, err := p.Wait(100)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestPCMLinkUnsupported(t *testing.T) {
	a := openNullPCM(t, pcmio.StreamPlayback)
	b := openNullPCM(t, pcmio.StreamCapture)

	assert.ErrorIs(t, a.Link(b), pcmio.ErrUnsupported)
	assert.ErrorIs(t, a.Unlink(), pcmio.ErrUnsupported)
}

func TestPCMDump(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)

	var buf bytes.Buffer
	require.NoError(t, p.DumpSetup(&buf))
	assert.Contains(t, buf.String(), "setup: not installed")

	require.NoError(t, p.HwParams(nil))

	buf.Reset()
	require.NoError(t, p.Dump(&buf))

	out := buf.String()
	assert.Contains(t, out, "Null PCM")
	assert.Contains(t, out, "stream       : PLAYBACK")
	assert.Contains(t, out, "format       : S16_LE")
	assert.Contains(t, out, "rate         : 48000")
	assert.Contains(t, out, "start_mode   : DATA")
	assert.Contains(t, out, "boundary     : 4611686018427387904")
}

func TestStatusDump(t *testing.T) {
	p := openNullPCM(t, pcmio.StreamPlayback)
	require.NoError(t, p.HwParams(nil))

	st, err := p.Status()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.Dump(&buf))
	assert.Contains(t, buf.String(), "state       : PREPARED")
	assert.Contains(t, buf.String(), "avail       : 4096")
}

func TestPCMClose(t *testing.T) {
	p, err := pcmio.Open("null", pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	require.NoError(t, p.HwParams(nil))

	n, err := p.WriteI(make([]byte, 1024), 256)
	require.NoError(t, err)
	require.Equal(t, 256, n)

	assert.NoError(t, p.Close())
}
