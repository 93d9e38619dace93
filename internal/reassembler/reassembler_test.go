package reassembler

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/mrzor/matrix-streamer/internal/fragment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Unix(1700000000, 0)

func frag(id, total, idx uint8, payload string) fragment.Fragment {
	return fragment.Fragment{FrameID: id, TotalParts: total, PartIndex: idx, Payload: []byte(payload)}
}

func TestSubmit_OutOfOrderPair(t *testing.T) {
	r := New(time.Second)

	got, err := r.Submit(frag(5, 2, 1, "BB"), testEpoch)
	require.NoError(t, err)
	assert.Nil(t, got, "frame must not complete before the last part")
	assert.Equal(t, 1, r.Pending())

	got, err = r.Submit(frag(5, 2, 0, "AA"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("AABB"), got)
	assert.Equal(t, 0, r.Pending(), "completed frame must leave the table")
}

func TestSubmit_AnyOrderCompletesOnLastPart(t *testing.T) {
	payload := make([]byte, 97)
	for i := range payload {
		payload[i] = byte(i)
	}
	frags, err := fragment.Split(42, payload, 10)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		order := rng.Perm(len(frags))
		r := New(time.Second)

		for n, i := range order {
			got, err := r.Submit(frags[i], testEpoch)
			require.NoError(t, err)
			if n < len(order)-1 {
				require.Nil(t, got, "trial %d: completed early at step %d", trial, n)
				continue
			}
			require.True(t, bytes.Equal(payload, got), "trial %d: payload mismatch", trial)
		}
	}
}

func TestSubmit_SinglePartFrame(t *testing.T) {
	r := New(time.Second)
	got, err := r.Submit(frag(1, 1, 0, "solo"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("solo"), got)
}

func TestSubmit_RejectsOutOfRangeWithoutStateChange(t *testing.T) {
	r := New(time.Second)

	_, err := r.Submit(frag(3, 2, 0, "AA"), testEpoch)
	require.NoError(t, err)

	got, err := r.Submit(frag(3, 2, 2, "ZZ"), testEpoch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartOutOfRange))
	assert.Nil(t, got)
	assert.Equal(t, 1, r.Pending())

	// The rejected part did not count toward completion
	got, err = r.Submit(frag(3, 2, 1, "BB"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("AABB"), got)
}

func TestSubmit_RejectsOutOfRangeForNewFrame(t *testing.T) {
	r := New(time.Second)

	_, err := r.Submit(frag(9, 2, 5, "x"), testEpoch)
	require.ErrorIs(t, err, ErrPartOutOfRange)
	assert.Equal(t, 0, r.Pending(), "rejected fragment must not create an entry")
}

func TestSubmit_ZeroTotalPartsNeverCompletes(t *testing.T) {
	r := New(time.Second)

	got, err := r.Submit(frag(4, 0, 0, ""), testEpoch)
	require.ErrorIs(t, err, ErrPartOutOfRange)
	assert.Nil(t, got)
	assert.Equal(t, 0, r.Pending())
}

func TestSubmit_FirstSeenTotalPartsIsAuthoritative(t *testing.T) {
	r := New(time.Second)

	_, err := r.Submit(frag(8, 2, 0, "AA"), testEpoch)
	require.NoError(t, err)

	// Claims three parts now, but the frame was opened with two
	_, err = r.Submit(frag(8, 3, 2, "CC"), testEpoch)
	require.ErrorIs(t, err, ErrPartOutOfRange)

	got, err := r.Submit(frag(8, 3, 1, "BB"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("AABB"), got)
}

func TestSubmit_DuplicatePartLastWriteWins(t *testing.T) {
	r := New(time.Second)

	_, err := r.Submit(frag(1, 3, 0, "old"), testEpoch)
	require.NoError(t, err)
	_, err = r.Submit(frag(1, 3, 0, "new"), testEpoch)
	require.NoError(t, err)
	got, err := r.Submit(frag(1, 3, 2, "-z"), testEpoch)
	require.NoError(t, err)
	assert.Nil(t, got, "duplicate must not count twice toward completion")

	got, err = r.Submit(frag(1, 3, 1, "-y"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-y-z"), got)
}

func TestSubmit_EmptyPayloadFillsSlot(t *testing.T) {
	r := New(time.Second)

	_, err := r.Submit(frag(2, 2, 0, ""), testEpoch)
	require.NoError(t, err)
	got, err := r.Submit(frag(2, 2, 1, "tail"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("tail"), got)
}

func TestSubmit_InterleavedFrames(t *testing.T) {
	r := New(time.Second)

	_, _ = r.Submit(frag(1, 2, 0, "a"), testEpoch)
	_, _ = r.Submit(frag(2, 2, 1, "D"), testEpoch)
	assert.Equal(t, 2, r.Pending())

	got, err := r.Submit(frag(2, 2, 0, "C"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("CD"), got)

	got, err = r.Submit(frag(1, 2, 1, "b"), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), got)
}

func TestExpire_OnSubmit(t *testing.T) {
	var expired []Expired
	r := New(time.Second, WithExpiryHook(func(e Expired) {
		expired = append(expired, e)
	}))

	_, err := r.Submit(frag(7, 3, 0, "AA"), testEpoch)
	require.NoError(t, err)

	// Exactly at the timeout the frame is still alive
	_, err = r.Submit(frag(9, 2, 0, "x"), testEpoch.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Equal(t, 2, r.Pending())

	_, err = r.Submit(frag(9, 2, 1, "y"), testEpoch.Add(time.Second+time.Millisecond))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, uint8(7), expired[0].FrameID)
	assert.Equal(t, 1, expired[0].Received)
	assert.Equal(t, 3, expired[0].Expected)
	assert.Equal(t, 0, r.Pending())
}

func TestExpire_IDStartsFreshAfterExpiry(t *testing.T) {
	r := New(time.Second)

	_, _ = r.Submit(frag(7, 2, 0, "stale"), testEpoch)
	later := testEpoch.Add(2 * time.Second)

	got, err := r.Submit(frag(7, 2, 1, "B"), later)
	require.NoError(t, err)
	assert.Nil(t, got, "old part 0 must not combine with the new frame")

	got, err = r.Submit(frag(7, 2, 0, "A"), later)
	require.NoError(t, err)
	assert.Equal(t, []byte("AB"), got)
}

func TestExpire_RejectedSubmitStillExpires(t *testing.T) {
	r := New(time.Second)
	_, _ = r.Submit(frag(1, 2, 0, "A"), testEpoch)

	_, err := r.Submit(frag(2, 1, 1, "bad"), testEpoch.Add(5*time.Second))
	require.ErrorIs(t, err, ErrPartOutOfRange)
	assert.Equal(t, 0, r.Pending())
}

func TestExpire_ExternalTick(t *testing.T) {
	r := New(500 * time.Millisecond)
	_, _ = r.Submit(frag(1, 2, 0, "A"), testEpoch)
	_, _ = r.Submit(frag(2, 2, 0, "A"), testEpoch.Add(400*time.Millisecond))

	assert.Equal(t, 0, r.Expire(testEpoch.Add(500*time.Millisecond)))
	assert.Equal(t, 1, r.Expire(testEpoch.Add(600*time.Millisecond)))
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1, r.Expire(testEpoch.Add(time.Second)))
}

func TestNew_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New(0).Timeout())
	assert.Equal(t, 3*time.Second, New(3*time.Second).Timeout())
}

func TestReset(t *testing.T) {
	hookCalled := false
	r := New(time.Second, WithExpiryHook(func(Expired) { hookCalled = true }))
	_, _ = r.Submit(frag(1, 2, 0, "A"), testEpoch)
	_, _ = r.Submit(frag(2, 2, 0, "A"), testEpoch)

	assert.Equal(t, 2, r.Reset())
	assert.Equal(t, 0, r.Pending())
	assert.False(t, hookCalled, "reset is not expiry")
}
