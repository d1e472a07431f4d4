package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-session-keeper/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	blob := types.SessionBlob{
		Identity:  "primary",
		Data:      []byte("sqlite session material, not actually random"),
		CreatedAt: created,
	}

	env, err := Encode(blob)
	require.NoError(t, err)

	got, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, blob.Identity, got.Identity)
	assert.Equal(t, blob.Data, got.Data)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestEncodeEmptyPayload(t *testing.T) {
	env, err := Encode(types.SessionBlob{Identity: "primary"})
	require.NoError(t, err)

	got, err := Decode(env)
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Equal(t, 0, got.Size())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":       {},
		"short":       {'W', 'S'},
		"wrong magic": []byte("NOPE\x00\x00\x00\x02{}"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.Error(t, err)
		})
	}
}

func TestDecodeRejectsTruncatedEnvelope(t *testing.T) {
	env, err := Encode(types.SessionBlob{
		Identity:  "primary",
		Data:      []byte("payload that will get cut off halfway through"),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = Decode(env[:len(env)-10])
	assert.Error(t, err)
}
