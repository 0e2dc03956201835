package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhite/inkling/internal/input"
)

func testConfig() Config {
	return Config{
		Corner:        UpperRight,
		ZoneSize:      120,
		Debounce:      500 * time.Millisecond,
		MoveTolerance: 15,
	}
}

func at(t0 time.Time, ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestCleanTapFires(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	act, err := d.Feed(input.TouchEvent{Time: t0, Contact: 7, X: 750, Y: 10, Phase: input.Down})
	require.NoError(t, err)
	assert.Nil(t, act)

	act, err = d.Feed(input.TouchEvent{Time: at(t0, 80), Contact: 7, X: 755, Y: 15, Phase: input.Up})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, 7, act.Contact)
}

func TestMoveOutOfZoneCancels(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 1, X: 750, Y: 10, Phase: input.Down})
	require.NoError(t, err)

	// Wanders well past the tolerance.
	_, err = d.Feed(input.TouchEvent{Time: at(t0, 50), Contact: 1, X: 400, Y: 300, Phase: input.Move})
	require.NoError(t, err)

	act, err := d.Feed(input.TouchEvent{Time: at(t0, 100), Contact: 1, X: 750, Y: 10, Phase: input.Up})
	require.NoError(t, err)
	assert.Nil(t, act, "a contact that left the zone must not trigger")
}

func TestSmallWobbleWithinToleranceStillFires(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 1, X: 700, Y: 60, Phase: input.Down})
	require.NoError(t, err)
	_, err = d.Feed(input.TouchEvent{Time: at(t0, 30), Contact: 1, X: 640, Y: 60, Phase: input.Move})
	require.NoError(t, err)

	act, err := d.Feed(input.TouchEvent{Time: at(t0, 60), Contact: 1, X: 700, Y: 60, Phase: input.Up})
	require.NoError(t, err)
	assert.NotNil(t, act, "wobble inside the tolerance band is still a tap")
}

func TestSlowTapDebounced(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 1, X: 750, Y: 10, Phase: input.Down})
	require.NoError(t, err)

	act, err := d.Feed(input.TouchEvent{Time: at(t0, 900), Contact: 1, X: 750, Y: 10, Phase: input.Up})
	require.NoError(t, err)
	assert.Nil(t, act, "press held past the debounce window is not a tap")
}

func TestStrokeEnteringZoneNeverArms(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	// Pen stroke starts outside the zone...
	_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 3, X: 100, Y: 500, Phase: input.Down})
	require.NoError(t, err)

	// ...sweeps through the corner...
	_, err = d.Feed(input.TouchEvent{Time: at(t0, 20), Contact: 3, X: 760, Y: 20, Phase: input.Move})
	require.NoError(t, err)

	// ...and lifts inside it.
	act, err := d.Feed(input.TouchEvent{Time: at(t0, 40), Contact: 3, X: 760, Y: 20, Phase: input.Up})
	require.NoError(t, err)
	assert.Nil(t, act, "only contacts whose whole lifetime stays in the zone may arm")
}

func TestConcurrentContactsTrackedIndependently(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	// A drawing stroke is in progress outside the zone.
	_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 1, X: 300, Y: 700, Phase: input.Down})
	require.NoError(t, err)

	// A separate finger taps the corner while the stroke continues.
	_, err = d.Feed(input.TouchEvent{Time: at(t0, 10), Contact: 2, X: 750, Y: 30, Phase: input.Down})
	require.NoError(t, err)
	_, err = d.Feed(input.TouchEvent{Time: at(t0, 20), Contact: 1, X: 310, Y: 710, Phase: input.Move})
	require.NoError(t, err)

	act, err := d.Feed(input.TouchEvent{Time: at(t0, 90), Contact: 2, X: 752, Y: 28, Phase: input.Up})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, 2, act.Contact)

	// The stroke finishing in the zone still must not retrigger.
	act, err = d.Feed(input.TouchEvent{Time: at(t0, 200), Contact: 1, X: 760, Y: 10, Phase: input.Up})
	require.NoError(t, err)
	assert.Nil(t, act)
}

func TestDuplicateDownIsPhaseError(t *testing.T) {
	d := New(testConfig())
	t0 := time.Now()

	_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 1, X: 750, Y: 10, Phase: input.Down})
	require.NoError(t, err)

	_, err = d.Feed(input.TouchEvent{Time: at(t0, 10), Contact: 1, X: 750, Y: 10, Phase: input.Down})
	assert.ErrorIs(t, err, ErrPhaseOrder)
}

func TestZonePerCorner(t *testing.T) {
	for corner, inside := range map[Corner][2]int{
		UpperRight: {760, 10},
		UpperLeft:  {10, 10},
		LowerRight: {760, 1015},
		LowerLeft:  {10, 1015},
	} {
		cfg := testConfig()
		cfg.Corner = corner
		d := New(cfg)
		t0 := time.Now()

		_, err := d.Feed(input.TouchEvent{Time: t0, Contact: 1, X: inside[0], Y: inside[1], Phase: input.Down})
		require.NoError(t, err)
		act, err := d.Feed(input.TouchEvent{Time: at(t0, 50), Contact: 1, X: inside[0], Y: inside[1], Phase: input.Up})
		require.NoError(t, err)
		assert.NotNil(t, act, "corner %s", corner)
	}
}

func TestActivationsStream(t *testing.T) {
	d := New(testConfig())
	events := make(chan input.TouchEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := d.Activations(ctx, events)

	t0 := time.Now()
	events <- input.TouchEvent{Time: t0, Contact: 1, X: 750, Y: 10, Phase: input.Down}
	events <- input.TouchEvent{Time: at(t0, 50), Contact: 1, X: 752, Y: 12, Phase: input.Up}
	// Second tap: the stream re-arms on its own.
	events <- input.TouchEvent{Time: at(t0, 800), Contact: 2, X: 750, Y: 10, Phase: input.Down}
	events <- input.TouchEvent{Time: at(t0, 850), Contact: 2, X: 750, Y: 10, Phase: input.Up}
	close(events)

	var got []Activation
	for act := range out {
		got = append(got, act)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Contact)
	assert.Equal(t, 2, got[1].Contact)
}

func TestParseCorner(t *testing.T) {
	c, err := ParseCorner("lower-left")
	require.NoError(t, err)
	assert.Equal(t, LowerLeft, c)

	c, err = ParseCorner("UR")
	require.NoError(t, err)
	assert.Equal(t, UpperRight, c)

	_, err = ParseCorner("middle")
	assert.Error(t, err)
}
