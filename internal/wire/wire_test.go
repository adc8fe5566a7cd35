package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titglob/rtsv/internal/record"
)

func TestDecodeTextBasic(t *testing.T) {
	r, err := DecodeText("decl_task @0 #0 0x10 T1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, record.KindDeclTask, r.Cmd)
	assert.EqualValues(t, 0, r.Time)
	assert.EqualValues(t, 0, r.GroupID)
	assert.EqualValues(t, 0x10, r.ID1)
	assert.Equal(t, "T1", r.Text)
}

func TestDecodeTextMultiWordPayload(t *testing.T) {
	r, err := DecodeText("send_msg @5 0x10 0x20 ping pong")
	require.NoError(t, err)
	assert.Equal(t, record.KindSendMsg, r.Cmd)
	assert.EqualValues(t, 0x10, r.ID1)
	assert.EqualValues(t, 0x20, r.ID2)
	assert.Equal(t, "ping pong", r.Text)
}

func TestDecodeTextComments(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment", "% also a comment"} {
		r, err := DecodeText(line)
		require.NoError(t, err)
		assert.Nil(t, r)
	}
}

func TestDecodeTextMissingTimeIsMalformed(t *testing.T) {
	_, err := DecodeText("decl_task #0 0x10 T1")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeTextUnknownCommand(t *testing.T) {
	_, err := DecodeText("not_a_real_cmd @0 0x10")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeTextHexAndOctal(t *testing.T) {
	r, err := DecodeText("set_int @10 0x1E v")
	require.NoError(t, err)
	assert.EqualValues(t, 0x1E, r.ID1)

	r, err = DecodeText("set_int @10 017 v")
	require.NoError(t, err)
	assert.EqualValues(t, 15, r.ID1) // 017 octal == 15 decimal
}

func TestDecodeBinaryNarrowIDs(t *testing.T) {
	payload := []byte{
		byte(record.KindDeclTask), // cmd byte, wide flag unset
		0, 0, 0, 5, // time = 5
		0, 0, 0, 0, // group = 0
		0, 0, 0, 0x10, // id1 = 0x10
		0, 0, 0, 0, // id2 = 0
		'T', '1', 0,
	}
	r, err := DecodeBinary(payload)
	require.NoError(t, err)
	assert.Equal(t, record.KindDeclTask, r.Cmd)
	assert.EqualValues(t, 5, r.Time)
	assert.EqualValues(t, 0x10, r.ID1)
	assert.Equal(t, "T1", r.Text)
}

func TestDecodeBinaryWideIDs(t *testing.T) {
	payload := []byte{
		byte(record.KindSendMsg) | 0x80, // wide flag set
		0, 0, 0, 7,
		0, 0, 0, 0, 0, 0, 0, 0, // group
		0, 0, 0, 0, 0, 0, 0, 0x10, // id1
		0, 0, 0, 0, 0, 0, 0, 0x20, // id2
		'p', 'i', 'n', 'g', 0,
	}
	r, err := DecodeBinary(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 0x10, r.ID1)
	assert.EqualValues(t, 0x20, r.ID2)
	assert.Equal(t, "ping", r.Text)
}

func TestDecodeBinaryRejectsUnknownCommand(t *testing.T) {
	payload := []byte{0x7f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := DecodeBinary(payload)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeBinaryRejectsOversizedPayload(t *testing.T) {
	payload := make([]byte, MaxPacketLen+1)
	payload[0] = byte(record.KindComment)
	_, err := DecodeBinary(payload)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeBinaryRejectsTruncatedPayload(t *testing.T) {
	_, err := DecodeBinary([]byte{byte(record.KindDeclTask), 0, 0})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
