package trip

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geofleet/ingestion/internal/domain"
)

func TestDecideOnWithNoTripOpens(t *testing.T) {
	newID := uuid.New()
	dec := Decide(nil, domain.IgnitionOn, newID)

	assert.True(t, dec.Open)
	assert.Nil(t, dec.Close)
	assert.Equal(t, newID, dec.NewTripID)
	require.NotNil(t, dec.HistoryTripID)
	assert.Equal(t, newID, *dec.HistoryTripID)
	require.NotNil(t, dec.NextTripID)
	assert.Equal(t, newID, *dec.NextTripID)
}

func TestDecideOnWithActiveTripReuses(t *testing.T) {
	active := uuid.New()
	dec := Decide(&active, domain.IgnitionOn, uuid.New())

	assert.False(t, dec.Open)
	assert.Nil(t, dec.Close)
	require.NotNil(t, dec.HistoryTripID)
	assert.Equal(t, active, *dec.HistoryTripID)
	require.NotNil(t, dec.NextTripID)
	assert.Equal(t, active, *dec.NextTripID)
}

func TestDecideOffClosesAndTagsClosingRow(t *testing.T) {
	active := uuid.New()
	dec := Decide(&active, domain.IgnitionOff, uuid.New())

	assert.False(t, dec.Open)
	require.NotNil(t, dec.Close)
	assert.Equal(t, active, *dec.Close)
	// The row documenting the moment the engine turned off belongs to the
	// trip that just ended.
	require.NotNil(t, dec.HistoryTripID)
	assert.Equal(t, active, *dec.HistoryTripID)
	assert.Nil(t, dec.NextTripID)
}

func TestDecideOffWithNoTripIsNoop(t *testing.T) {
	dec := Decide(nil, domain.IgnitionOff, uuid.New())

	assert.False(t, dec.Open)
	assert.Nil(t, dec.Close)
	assert.Nil(t, dec.HistoryTripID)
	assert.Nil(t, dec.NextTripID)
}

func TestDecideUnknownNeverTransitions(t *testing.T) {
	t.Run("no trip", func(t *testing.T) {
		dec := Decide(nil, domain.IgnitionUnknown, uuid.New())
		assert.False(t, dec.Open)
		assert.Nil(t, dec.Close)
		assert.Nil(t, dec.HistoryTripID)
		assert.Nil(t, dec.NextTripID)
	})

	t.Run("active trip", func(t *testing.T) {
		active := uuid.New()
		dec := Decide(&active, domain.IgnitionUnknown, uuid.New())
		assert.False(t, dec.Open)
		assert.Nil(t, dec.Close)
		require.NotNil(t, dec.HistoryTripID)
		assert.Equal(t, active, *dec.HistoryTripID)
		require.NotNil(t, dec.NextTripID)
		assert.Equal(t, active, *dec.NextTripID)
	})
}

// Feed a full On → On → Off → Unknown sequence through the machine and check
// the invariant: NextTripID is non-nil exactly while the last signal was On.
func TestDecideSequence(t *testing.T) {
	first := uuid.New()

	dec := Decide(nil, domain.IgnitionOn, first)
	require.NotNil(t, dec.NextTripID)

	dec = Decide(dec.NextTripID, domain.IgnitionOn, uuid.New())
	assert.False(t, dec.Open, "second On must not open a second trip")
	assert.Equal(t, first, *dec.NextTripID)

	dec = Decide(dec.NextTripID, domain.IgnitionOff, uuid.New())
	require.NotNil(t, dec.Close)
	assert.Equal(t, first, *dec.Close)
	assert.Nil(t, dec.NextTripID)

	dec = Decide(dec.NextTripID, domain.IgnitionUnknown, uuid.New())
	assert.Nil(t, dec.HistoryTripID, "post-close Unknown rows carry no trip tag")
}
