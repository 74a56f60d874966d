package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"echochat/internal/models"
)

func TestDecodeFrame(t *testing.T) {
	req := require.New(t)

	f, err := DecodeFrame([]byte(`{"destination":"send-private","payload":{"type":"PRIVATE_MESSAGE","sender":"alice","recipient":"bob","content":"hi","color":"#fff"}}`), 100)
	req.NoError(err)
	req.Equal(DestSendPrivate, f.Destination)
	req.Equal("bob", f.Payload.RecipientName())
	req.True(f.Payload.Timestamp.IsZero())

	f, err = DecodeFrame([]byte(`{"destination":"join","payload":{}}`), 0)
	req.NoError(err)
	req.Equal("", f.Payload.Content)
}

func TestDecodeFrame_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"no destination":    `{"payload":{"sender":"alice"}}`,
		"leave from client": `{"destination":"leave","payload":{"sender":"alice"}}`,
		"bad type":          `{"destination":"send-public","payload":{"type":"SHOUT","sender":"alice"}}`,
		"long sender":       fmt.Sprintf(`{"destination":"join","payload":{"sender":%q}}`, strings.Repeat("a", 65)),
		"long content":      fmt.Sprintf(`{"destination":"send-public","payload":{"sender":"a","content":%q}}`, strings.Repeat("字", 11)),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(raw), 10)
			require.ErrorIs(t, err, ErrInvalidFrame)
		})
	}
}

func TestEncodeFrames(t *testing.T) {
	req := require.New(t)

	b, err := EncodeMessage(ChannelPrivate, models.ChatMessage{ID: 3, Type: models.MessageTypePrivate, Sender: "alice"})
	req.NoError(err)
	var out OutboundFrame
	req.NoError(json.Unmarshal(b, &out))
	req.Equal(ChannelPrivate, out.Channel)
	req.Equal(int64(3), out.Message.ID)
	req.Nil(out.Error)

	b, err = EncodeError(fmt.Errorf("%w: %q", ErrUnknownUser, "ghost"))
	req.NoError(err)
	out = OutboundFrame{}
	req.NoError(json.Unmarshal(b, &out))
	req.Equal(ChannelError, out.Channel)
	req.Equal("UNKNOWN_USER", out.Error.Code)
	req.Nil(out.Message)
}
