package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xeptore/skylocker/locker/wire"
)

func TestDecodeAuthResponseSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	var b []byte
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "future field")
	b = protowire.AppendTag(b, authRespFieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, authStatusOK)

	status, err := decodeAuthResponse(b)
	require.NoError(t, err)
	assert.Equal(t, int64(authStatusOK), status)
}

func TestDecodeAuthResponseMissingStatus(t *testing.T) {
	t.Parallel()

	var b []byte
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "no status here")

	_, err := decodeAuthResponse(b)
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecodeTrackSignals(t *testing.T) {
	t.Parallel()

	raw := signalsResponse(
		trackSignal{ClientID: "c-1", Code: signalMatched, ServerID: "s-1"},
		trackSignal{ClientID: "c-2", Code: signalSampleRequested, ServerID: ""},
	)

	signals, err := decodeTrackSignals(raw)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, trackSignal{ClientID: "c-1", Code: signalMatched, ServerID: "s-1"}, signals[0])
	assert.Equal(t, trackSignal{ClientID: "c-2", Code: signalSampleRequested, ServerID: ""}, signals[1])
}

func TestDecodeTrackSignalRequiresClientID(t *testing.T) {
	t.Parallel()

	var sub []byte
	sub = protowire.AppendTag(sub, signalFieldCode, protowire.VarintType)
	sub = protowire.AppendVarint(sub, uint64(signalMatched))

	var b []byte
	b = protowire.AppendTag(b, signalRespFieldTrack, protowire.BytesType)
	b = protowire.AppendBytes(b, sub)

	_, err := decodeTrackSignals(b)
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecodeTrackSignalsMalformed(t *testing.T) {
	t.Parallel()

	_, err := decodeTrackSignals([]byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, wire.ErrProtocol)
}
