package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sryo/nombre-pendiente/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	room := domain.NewRoom()
	room.UpsertUser("u1", "ana")
	require.NoError(t, room.AddVideo(domain.Video{ID: "abc", Title: "t", AddedBy: "ana"}))

	for _, msg := range []Message{
		&Join{UserID: "u1", Username: "ana"},
		&AddVideo{Video: domain.Video{ID: "abc", Title: "t"}},
		&Vote{UserID: "u1", VideoID: "abc", Unvote: true},
		&State{Room: room},
		&Error{Message: "nope"},
	} {
		data, err := Encode(msg)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeBadJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeRejectsInvalidIntents(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"type":"join","userId":"","username":"ana"}`),
		[]byte(`{"type":"join","userId":"u1","username":""}`),
		[]byte(`{"type":"vote","userId":"u1","videoId":""}`),
		[]byte(`{"type":"add-video","video":{"title":"no id"}}`),
	}
	for _, data := range cases {
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrBadPayload, string(data))
	}
}

func TestDecodeStateWireShape(t *testing.T) {
	data := []byte(`{"type":"state","room":{"phase":"voting","videos":[],"users":[{"id":"u1","name":"ana"}]}}`)
	msg, err := Decode(data)
	require.NoError(t, err)
	st, ok := msg.(*State)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseVoting, st.Room.Phase)
	require.Len(t, st.Room.Users, 1)
	assert.Equal(t, domain.UserID("u1"), st.Room.Users[0].ID)
}
