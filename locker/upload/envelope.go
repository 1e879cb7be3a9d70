package upload

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xeptore/skylocker/locker/wire"
)

// The upload endpoints speak a protocol-buffer envelope instead of the JSON
// array encoding the catalog endpoints use. Messages are assembled and read
// field by field; there is no published schema to generate code from.

// Device authorization request fields.
const (
	authFieldUploaderID   = 1
	authFieldFriendlyName = 2
)

// Device authorization response fields.
const (
	authRespFieldStatus = 1

	authStatusOK = 1
)

// Metadata and sample request fields.
const (
	reqFieldUploaderID = 1
	reqFieldTrack      = 2
)

// Per-track metadata sub-message fields.
const (
	trackFieldClientID       = 1
	trackFieldTitle          = 2
	trackFieldArtist         = 3
	trackFieldAlbum          = 4
	trackFieldGenre          = 5
	trackFieldTrackNumber    = 6
	trackFieldDiscNumber     = 7
	trackFieldDurationMillis = 8
	trackFieldEstimatedSize  = 9
	trackFieldBitrate        = 10
)

// Per-track sample sub-message fields.
const (
	sampleFieldClientID = 1
	sampleFieldBytes    = 2
)

// Per-track response sub-message fields, shared by the metadata and sample
// endpoints.
const (
	signalRespFieldTrack = 1

	signalFieldClientID = 1
	signalFieldCode     = 2
	signalFieldServerID = 3
)

// trackSignalCode is the server's verdict for one track.
type trackSignalCode int64

const (
	signalSampleRequested trackSignalCode = 1
	signalMatched         trackSignalCode = 2
	signalAlreadyExists   trackSignalCode = 3
	signalUploadRequested trackSignalCode = 4
)

// Upload state request fields.
const (
	stateFieldUploaderID = 1
	stateFieldState      = 2

	uploadStateStopped = 2
)

func encodeAuthRequest(deviceID, deviceName string) []byte {
	var b []byte
	b = protowire.AppendTag(b, authFieldUploaderID, protowire.BytesType)
	b = protowire.AppendString(b, deviceID)
	b = protowire.AppendTag(b, authFieldFriendlyName, protowire.BytesType)
	b = protowire.AppendString(b, deviceName)

	return b
}

func decodeAuthResponse(raw []byte) (int64, error) {
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return 0, fmt.Errorf("%w: malformed device auth response tag", wire.ErrProtocol)
		}
		raw = raw[n:]

		if num == authRespFieldStatus && typ == protowire.VarintType {
			status, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return 0, fmt.Errorf("%w: malformed device auth status", wire.ErrProtocol)
			}

			return int64(status), nil
		}

		n = protowire.ConsumeFieldValue(num, typ, raw)
		if n < 0 {
			return 0, fmt.Errorf("%w: malformed device auth response field", wire.ErrProtocol)
		}
		raw = raw[n:]
	}

	return 0, fmt.Errorf("%w: device auth response carries no status", wire.ErrProtocol)
}

func encodeTrackMetadata(t Track, estimatedSize int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, trackFieldClientID, protowire.BytesType)
	b = protowire.AppendString(b, t.ClientID)
	b = protowire.AppendTag(b, trackFieldTitle, protowire.BytesType)
	b = protowire.AppendString(b, t.Title)
	b = protowire.AppendTag(b, trackFieldArtist, protowire.BytesType)
	b = protowire.AppendString(b, t.Artist)
	b = protowire.AppendTag(b, trackFieldAlbum, protowire.BytesType)
	b = protowire.AppendString(b, t.Album)
	b = protowire.AppendTag(b, trackFieldGenre, protowire.BytesType)
	b = protowire.AppendString(b, t.Genre)
	b = protowire.AppendTag(b, trackFieldTrackNumber, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.TrackNumber))
	b = protowire.AppendTag(b, trackFieldDiscNumber, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.DiscNumber))
	b = protowire.AppendTag(b, trackFieldDurationMillis, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.DurationMillis))
	b = protowire.AppendTag(b, trackFieldEstimatedSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(estimatedSize))
	b = protowire.AppendTag(b, trackFieldBitrate, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.BitrateKbps))

	return b
}

func encodeMetadataRequest(deviceID string, tracks []Track, sizes map[string]int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, reqFieldUploaderID, protowire.BytesType)
	b = protowire.AppendString(b, deviceID)
	for _, t := range tracks {
		b = protowire.AppendTag(b, reqFieldTrack, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTrackMetadata(t, sizes[t.ClientID]))
	}

	return b
}

func encodeSampleRequest(deviceID string, samples map[string][]byte, order []string) []byte {
	var b []byte
	b = protowire.AppendTag(b, reqFieldUploaderID, protowire.BytesType)
	b = protowire.AppendString(b, deviceID)
	for _, clientID := range order {
		var sub []byte
		sub = protowire.AppendTag(sub, sampleFieldClientID, protowire.BytesType)
		sub = protowire.AppendString(sub, clientID)
		sub = protowire.AppendTag(sub, sampleFieldBytes, protowire.BytesType)
		sub = protowire.AppendBytes(sub, samples[clientID])

		b = protowire.AppendTag(b, reqFieldTrack, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}

	return b
}

func encodeStateRequest(deviceID string, state int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, stateFieldUploaderID, protowire.BytesType)
	b = protowire.AppendString(b, deviceID)
	b = protowire.AppendTag(b, stateFieldState, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(state))

	return b
}

// trackSignal is the per-track verdict returned by the metadata and sample
// endpoints.
type trackSignal struct {
	ClientID string
	Code     trackSignalCode
	ServerID string
}

func decodeTrackSignals(raw []byte) ([]trackSignal, error) {
	var signals []trackSignal
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed track signal response tag", wire.ErrProtocol)
		}
		raw = raw[n:]

		if num == signalRespFieldTrack && typ == protowire.BytesType {
			sub, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed track signal sub-message", wire.ErrProtocol)
			}
			raw = raw[n:]

			signal, err := decodeTrackSignal(sub)
			if nil != err {
				return nil, err
			}
			signals = append(signals, signal)

			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed track signal response field", wire.ErrProtocol)
		}
		raw = raw[n:]
	}

	return signals, nil
}

func decodeTrackSignal(raw []byte) (trackSignal, error) {
	var signal trackSignal
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return signal, fmt.Errorf("%w: malformed track signal tag", wire.ErrProtocol)
		}
		raw = raw[n:]

		switch {
		case num == signalFieldClientID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(raw)
			if n < 0 {
				return signal, fmt.Errorf("%w: malformed track signal client id", wire.ErrProtocol)
			}
			signal.ClientID = v
			raw = raw[n:]
		case num == signalFieldCode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return signal, fmt.Errorf("%w: malformed track signal code", wire.ErrProtocol)
			}
			signal.Code = trackSignalCode(v)
			raw = raw[n:]
		case num == signalFieldServerID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(raw)
			if n < 0 {
				return signal, fmt.Errorf("%w: malformed track signal server id", wire.ErrProtocol)
			}
			signal.ServerID = v
			raw = raw[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return signal, fmt.Errorf("%w: malformed track signal field", wire.ErrProtocol)
			}
			raw = raw[n:]
		}
	}

	if signal.ClientID == "" {
		return signal, fmt.Errorf("%w: track signal carries no client id", wire.ErrProtocol)
	}

	return signal, nil
}
