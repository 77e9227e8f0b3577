package stream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/stream"
)

func TestEncodeDecodeLike(t *testing.T) {
	in := stream.LikeInserted{Like: db.Like{FromUser: 7, ToTarget: 9, Direction: db.DirectionRight}}

	channel, payload, err := stream.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "changes:likes", channel)

	out, err := stream.Decode(payload)
	require.NoError(t, err)
	like, ok := out.(stream.LikeInserted)
	require.True(t, ok)
	assert.Equal(t, in.Like.FromUser, like.Like.FromUser)
	assert.Equal(t, in.Like.Direction, like.Like.Direction)
	assert.Equal(t, "7:9", like.RecordKey())
}

func TestEncodeDecodeMatchCarriesOldRow(t *testing.T) {
	in := stream.MatchUpdated{
		Old: db.Match{ID: 3, UserA: 1, UserB: 2, IsMutual: false},
		New: db.Match{ID: 3, UserA: 1, UserB: 2, IsMutual: true},
	}

	channel, payload, err := stream.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "changes:matches", channel)

	out, err := stream.Decode(payload)
	require.NoError(t, err)
	match, ok := out.(stream.MatchUpdated)
	require.True(t, ok)
	assert.False(t, match.Old.IsMutual)
	assert.True(t, match.New.IsMutual)
	assert.Equal(t, "3", match.RecordKey())
}

func TestEncodeDecodeMessage(t *testing.T) {
	in := stream.MessageInserted{Message: db.Message{
		ID:             11,
		ConversationID: 3,
		SenderID:       2,
		Body:           "is the room still free?",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}}

	channel, payload, err := stream.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "changes:messages", channel)

	out, err := stream.Decode(payload)
	require.NoError(t, err)
	msg, ok := out.(stream.MessageInserted)
	require.True(t, ok)
	assert.Equal(t, in.Message.Body, msg.Message.Body)
	assert.Equal(t, stream.KindMessage, msg.Kind())
}

func TestDecodeRejectsUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"unknown table":   `{"table":"users","event":"INSERT","new":{}}`,
		"unknown event":   `{"table":"likes","event":"DELETE","new":{}}`,
		"not json at all": `::nope::`,
		"bad row payload": `{"table":"likes","event":"INSERT","new":"not-a-row"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := stream.Decode([]byte(payload))
			assert.Error(t, err)
		})
	}
}
