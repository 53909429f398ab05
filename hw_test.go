package pcmio_test

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/pcmio"
)

// loopbackCard finds the snd-aloop card, the only hardware these tests
// can rely on. Everything else about the machine's audio is unknown.
func loopbackCard(t *testing.T) int {
	t.Helper()

	if _, err := os.Stat("/proc/asound"); err != nil {
		t.Skip("no sound subsystem")
	}

	cards, err := pcmio.Cards()
	if err != nil {
		t.Skipf("cannot list cards: %v", err)
	}

	for _, c := range cards {
		if c.ID == "Loopback" || strings.Contains(c.Description, "Loopback") {
			return c.Index
		}
	}

	t.Skip("no loopback card")

	return -1
}

func TestCards(t *testing.T) {
	if _, err := os.Stat("/proc/asound/cards"); err != nil {
		t.Skip("no sound subsystem")
	}

	cards, err := pcmio.Cards()
	require.NoError(t, err)

	for _, c := range cards {
		assert.GreaterOrEqual(t, c.Index, 0)
		assert.NotEmpty(t, c.String())
	}
}

func TestCardIndex(t *testing.T) {
	card := loopbackCard(t)

	cards, err := pcmio.Cards()
	require.NoError(t, err)

	var id string
	for _, c := range cards {
		if c.Index == card {
			id = c.ID
		}
	}
	require.NotEmpty(t, id)

	index, err := pcmio.CardIndex(id)
	require.NoError(t, err)
	assert.Equal(t, card, index)

	_, err = pcmio.CardIndex("NoSuchCard")
	assert.ErrorIs(t, err, pcmio.ErrNotFound)
}

func TestCardName(t *testing.T) {
	card := loopbackCard(t)

	name, err := pcmio.CardName(card)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestQueryHWCaps(t *testing.T) {
	card := loopbackCard(t)

	caps, err := pcmio.QueryHWCaps(card, 0, pcmio.StreamPlayback)
	require.NoError(t, err)

	assert.True(t, caps.AccessSupported(pcmio.AccessRWInterleaved))
	assert.True(t, caps.FormatSupported(pcmio.FormatS16LE))

	minCh, err := caps.RangeMin(pcmio.SNDRV_PCM_HW_PARAM_CHANNELS)
	require.NoError(t, err)
	maxCh, err := caps.RangeMax(pcmio.SNDRV_PCM_HW_PARAM_CHANNELS)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, maxCh, minCh)

	assert.Contains(t, caps.String(), "S16_LE")
}

func TestHWPlayback(t *testing.T) {
	card := loopbackCard(t)

	name := "hw:" + strconv.Itoa(card) + ",0"

	p, err := pcmio.Open(name, pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	assert.Equal(t, pcmio.TypeHW, p.Type())
	assert.Equal(t, name, p.Name())

	params := &pcmio.HWParams{
		Format:     pcmio.FormatS16LE,
		Channels:   2,
		Rate:       48000,
		PeriodSize: 1024,
		BufferSize: 4096,
	}
	require.NoError(t, p.HwParams(params))
	assert.Equal(t, pcmio.StatePrepared, p.State())
	assert.Equal(t, 48000, p.Rate())

	info, err := p.Info()
	require.NoError(t, err)
	assert.Equal(t, card, info.Card)

	avail, err := p.AvailUpdate()
	require.NoError(t, err)
	assert.Equal(t, params.BufferSize, avail)

	buf := make([]byte, p.FramesToBytes(params.PeriodSize))

	n, err := p.WriteI(buf, params.PeriodSize)
	require.NoError(t, err)
	assert.Equal(t, params.PeriodSize, n)
	assert.Equal(t, pcmio.StateRunning, p.State())

	status, err := p.Status()
	require.NoError(t, err)
	assert.Equal(t, pcmio.StateRunning, status.State)

	require.NoError(t, p.Drop())
	assert.Equal(t, pcmio.StatePrepared, p.State())
}

func TestHWLoopbackTransfer(t *testing.T) {
	card := loopbackCard(t)

	play, err := pcmio.Open("hw:"+strconv.Itoa(card)+",0,0", pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	t.Cleanup(func() { play.Close() })

	capt, err := pcmio.Open("hw:"+strconv.Itoa(card)+",1,0", pcmio.StreamCapture, 0)
	require.NoError(t, err)
	t.Cleanup(func() { capt.Close() })

	for _, p := range []*pcmio.PCM{play, capt} {
		params := &pcmio.HWParams{
			Format:     pcmio.FormatS16LE,
			Channels:   2,
			Rate:       48000,
			PeriodSize: 480,
			BufferSize: 1920,
		}
		require.NoError(t, p.HwParams(params))
	}

	// Feed the cable long enough for the capture side to collect two
	// periods. The content is not compared: where the reader attaches to
	// the ring is up to the driver.
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, play.FramesToBytes(480))
		for i := 0; i < 20; i++ {
			if _, err := play.WriteI(buf, 480); err != nil {
				done <- err

				return
			}
		}

		done <- nil
	}()

	in := make([]byte, capt.FramesToBytes(960))

	n, err := capt.ReadI(in, 960)
	require.NoError(t, err)
	assert.Equal(t, 960, n)

	require.NoError(t, <-done)
	require.NoError(t, play.Drop())
	require.NoError(t, capt.Drop())
}
