package proto

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeStamping(t *testing.T) {
	e := NewEnvelope([]byte(`{"data":123}`), "ref-1")
	require.False(t, e.Stamped())

	stamped := e.WithOrigin("endpoint-1-abcd")
	require.True(t, stamped.Stamped())
	require.Equal(t, "endpoint-1-abcd", stamped.Origin)
	require.False(t, e.Stamped(), "original must not be mutated")
}

func TestWithOriginClonesBody(t *testing.T) {
	body := []byte(`{"data":123}`)
	e := NewEnvelope(body, "")
	stamped := e.WithOrigin("endpoint-2-ef01")
	body[2] = 'x'
	require.Equal(t, json.RawMessage(`{"data":123}`), stamped.Body)
}

func TestDecodeEnvelopeRejectsVersionMismatch(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"v":"editmesh/999","body":{}}`))
	require.Error(t, err)
}

func TestDecodeEnvelopeAcceptsMissingVersion(t *testing.T) {
	e, err := DecodeEnvelope([]byte(`{"body":{"data":1},"ref_id":"r"}`))
	require.NoError(t, err)
	require.Equal(t, "r", e.RefID)
	require.False(t, e.Stamped())
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	in := NewEnvelope([]byte(`{"k":"v"}`), "ref-9").WithOrigin("endpoint-3-0000")
	data, err := EncodeEnvelope(in)
	require.NoError(t, err)
	out, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, in.Origin, out.Origin)
	require.Equal(t, in.RefID, out.RefID)
	require.JSONEq(t, string(in.Body), string(out.Body))
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"edits.doc","payload":{}}`)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestEncodeFrameRejectsEmpty(t *testing.T) {
	_, err := EncodeFrame(nil)
	require.Error(t, err)
}

func TestDecodeEventFrameRequiresEvent(t *testing.T) {
	_, err := DecodeEventFrame([]byte(`{"payload":{}}`))
	require.Error(t, err)
}

func TestEditKeyIsStable(t *testing.T) {
	require.Equal(t, EditKey("ref-1"), EditKey("ref-1"))
	require.NotEqual(t, EditKey("ref-1"), EditKey("ref-2"))
}
