package frame

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/botlink-go/internal/content"
)

var testKey = RoutingKey{APIKey: "k1", Platform: "qq"}

func mustText(t *testing.T, s string) content.ReplyContent {
	t.Helper()
	c, err := content.NewText(s)
	require.NoError(t, err)
	return c
}

func roundTrip(t *testing.T, env Envelope) Envelope {
	t.Helper()
	data, err := Encode(env)
	require.NoError(t, err)
	got, err := Decode(data, content.DefaultMaxForwardDepth)
	require.NoError(t, err)
	return got
}

func TestRoundTrip_Text(t *testing.T) {
	set, err := content.NewReplySet(mustText(t, "hi"))
	require.NoError(t, err)

	env := NewEnvelope(testKey, set)
	got := roundTrip(t, env)

	assert.Equal(t, env.MessageID, got.MessageID)
	assert.Equal(t, testKey, got.Target)
	assert.Equal(t, KindStandard, got.Kind)
	assert.Equal(t, env.Content, got.Content)
	assert.Equal(t, env.Timestamp.UnixMilli(), got.Timestamp.UnixMilli())
}

func TestRoundTrip_AllLeafVariants(t *testing.T) {
	img, _ := content.NewImage([]byte{0x89, 0x50, 0x4e, 0x47})
	emoji, _ := content.NewEmoji([]byte{0xf0, 0x9f})
	voice, _ := content.NewVoice([]byte{0x52, 0x49, 0x46, 0x46})

	set, err := content.NewReplySet(mustText(t, "caption"), img, emoji, voice)
	require.NoError(t, err)

	got := roundTrip(t, NewEnvelope(testKey, set))
	assert.Equal(t, set, got.Content)
}

func TestRoundTrip_Command(t *testing.T) {
	// Use JSON-native value types so decode reproduces them exactly.
	cmd, err := content.NewCommand(map[string]any{
		"action":  "ban",
		"seconds": float64(600),
		"silent":  true,
		"targets": []any{"u1", "u2"},
		"extra":   map[string]any{"reason": "spam"},
	})
	require.NoError(t, err)

	set, err := content.NewReplySet(cmd)
	require.NoError(t, err)

	got := roundTrip(t, NewEnvelope(testKey, set))
	assert.Equal(t, set, got.Content)
}

func TestRoundTrip_Hybrid(t *testing.T) {
	img, _ := content.NewImage([]byte{1, 2, 3})
	hybrid, err := content.NewHybrid(mustText(t, "look:"), img)
	require.NoError(t, err)

	set, err := content.NewReplySet(hybrid)
	require.NoError(t, err)

	got := roundTrip(t, NewEnvelope(testKey, set))
	assert.Equal(t, set, got.Content)
}

func TestRoundTrip_ForwardAtMaxDepth(t *testing.T) {
	// forward > node > forward > node > forward (depth 3)
	inner, err := content.NewForward(nodeOf(t, mustText(t, "deepest")))
	require.NoError(t, err)
	mid, err := content.NewForward(nodeOf(t, inner))
	require.NoError(t, err)
	ref, err := content.NewRefNode("msg-7")
	require.NoError(t, err)
	outer, err := content.NewForward(nodeOf(t, mid), ref)
	require.NoError(t, err)

	set, err := content.NewReplySet(outer)
	require.NoError(t, err)

	got := roundTrip(t, NewEnvelope(testKey, set))
	assert.Equal(t, set, got.Content)
}

func nodeOf(t *testing.T, parts ...content.ReplyContent) content.ForwardNode {
	t.Helper()
	n, err := content.NewNode("u1", "nick", parts...)
	require.NoError(t, err)
	return n
}

func TestRoundTrip_Custom(t *testing.T) {
	env := NewCustomEnvelope(testKey, map[string]any{
		"op":   "capabilities",
		"caps": []any{"voice", "forward"},
	})
	got := roundTrip(t, env)
	assert.Equal(t, KindCustom, got.Kind)
	assert.Equal(t, env.Custom, got.Custom)
	assert.Nil(t, got.Content)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("{not json"), 0)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Decode([]byte(`{"kind":"standard","body":[]}`), 0)
	assert.ErrorIs(t, err, ErrMalformedFrame) // missing message_id

	_, err = Decode([]byte(`{"message_id":"m1","kind":"telepathy","body":{}}`), 0)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecode_UnknownVariant(t *testing.T) {
	raw := `{"message_id":"m1","target":{"api_key":"k1","platform":"qq"},
		"timestamp":0,"kind":"standard",
		"body":[{"type":"sticker","content":"xyz"}]}`
	_, err := Decode([]byte(raw), 0)
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestDecode_RevalidatesStructure(t *testing.T) {
	// Hybrid containing a command: constructible only by hand or a hostile
	// peer, must be rejected on decode.
	raw := `{"message_id":"m1","target":{"api_key":"k1","platform":"qq"},
		"timestamp":0,"kind":"standard",
		"body":[{"type":"hybrid","content":[{"type":"command","content":{"a":1}}]}]}`
	_, err := Decode([]byte(raw), 0)
	assert.ErrorIs(t, err, content.ErrInvalidStructure)
}

func TestDecode_RevalidatesDepth(t *testing.T) {
	inner, err := content.NewForward(nodeOf(t, mustText(t, "x")))
	require.NoError(t, err)
	mid, err := content.NewForward(nodeOf(t, inner))
	require.NoError(t, err)
	outer, err := content.NewForward(nodeOf(t, mid))
	require.NoError(t, err)

	set, err := content.NewReplySet(outer)
	require.NoError(t, err)
	data, err := Encode(NewEnvelope(testKey, set))
	require.NoError(t, err)

	// Depth 3 passes with the default bound but not with a tighter one.
	_, err = Decode(data, content.DefaultMaxForwardDepth)
	assert.NoError(t, err)
	_, err = Decode(data, 2)
	assert.ErrorIs(t, err, content.ErrDepthExceeded)
}

func TestDecode_LegacySingleObjectBody(t *testing.T) {
	raw := `{"message_id":"m1","target":{"api_key":"k1","platform":"qq"},
		"timestamp":1700000000000,"kind":"standard",
		"body":{"type":"text","content":"single"}}`
	env, err := Decode([]byte(raw), 0)
	require.NoError(t, err)
	require.Len(t, env.Content, 1)
	assert.Equal(t, "single", env.Content[0].Text)
}

func TestEncode_MediaIsBase64Text(t *testing.T) {
	img, _ := content.NewImage([]byte{0x00, 0x01, 0xff})
	set, err := content.NewReplySet(img)
	require.NoError(t, err)

	data, err := Encode(NewEnvelope(testKey, set))
	require.NoError(t, err)

	// The whole frame must be valid structured text.
	var wf map[string]any
	require.NoError(t, json.Unmarshal(data, &wf))
	body := wf["body"].([]any)
	part := body[0].(map[string]any)
	assert.Equal(t, "image", part["type"])
	assert.Equal(t, "AAH/", part["content"])
}
