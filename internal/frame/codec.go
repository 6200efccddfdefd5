package frame

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dayuer/botlink-go/internal/content"
)

// wireFrame is the top-level JSON shape of a frame.
type wireFrame struct {
	MessageID string          `json:"message_id"`
	Target    RoutingKey      `json:"target"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Kind      Kind            `json:"kind"`
	Body      json.RawMessage `json:"body"`
}

// wireContent mirrors one ReplyContent variant with a type discriminator.
type wireContent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// wireNode mirrors a ForwardNode. A non-empty ref marks a reference node;
// otherwise the node is generative.
type wireNode struct {
	Ref      string        `json:"ref,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	Nickname string        `json:"user_nickname,omitempty"`
	Content  []wireContent `json:"content,omitempty"`
}

// Encode serializes an envelope. It always succeeds for envelopes built
// through the constructors; the error path exists for hand-assembled values.
func Encode(env Envelope) ([]byte, error) {
	wf := wireFrame{
		MessageID: env.MessageID,
		Target:    env.Target,
		Timestamp: env.Timestamp.UnixMilli(),
		Kind:      env.Kind,
	}

	switch env.Kind {
	case KindStandard:
		parts := make([]wireContent, len(env.Content))
		for i, c := range env.Content {
			wc, err := encodeContent(c)
			if err != nil {
				return nil, err
			}
			parts[i] = wc
		}
		body, err := json.Marshal(parts)
		if err != nil {
			return nil, err
		}
		wf.Body = body
	case KindCustom:
		body, err := json.Marshal(env.Custom)
		if err != nil {
			return nil, err
		}
		wf.Body = body
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrMalformedFrame, env.Kind)
	}

	return json.Marshal(wf)
}

// Decode parses and fully re-validates a frame. The wire is untrusted:
// every structural invariant of the content model is checked again with the
// given forward depth bound.
func Decode(data []byte, maxDepth int) (Envelope, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if wf.MessageID == "" {
		return Envelope{}, fmt.Errorf("%w: missing message_id", ErrMalformedFrame)
	}

	env := Envelope{
		MessageID: wf.MessageID,
		Target:    wf.Target,
		Timestamp: time.UnixMilli(wf.Timestamp),
		Kind:      wf.Kind,
	}

	switch wf.Kind {
	case KindStandard:
		set, err := decodeBody(wf.Body)
		if err != nil {
			return Envelope{}, err
		}
		if err := set.Validate(maxDepth); err != nil {
			return Envelope{}, err
		}
		env.Content = set
	case KindCustom:
		var payload map[string]any
		if err := json.Unmarshal(wf.Body, &payload); err != nil {
			return Envelope{}, fmt.Errorf("%w: custom body: %v", ErrMalformedFrame, err)
		}
		env.Custom = payload
	default:
		return Envelope{}, fmt.Errorf("%w: kind %q", ErrMalformedFrame, wf.Kind)
	}

	return env, nil
}

// decodeBody accepts either an array of content objects or, for legacy
// single-part sends, one bare content object.
func decodeBody(body []byte) (content.ReplySet, error) {
	var parts []wireContent
	if err := json.Unmarshal(body, &parts); err != nil {
		var single wireContent
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrMalformedFrame, err)
		}
		parts = []wireContent{single}
	}

	set := make(content.ReplySet, len(parts))
	for i, wc := range parts {
		c, err := decodeContent(wc)
		if err != nil {
			return nil, err
		}
		set[i] = c
	}
	return set, nil
}

func encodeContent(c content.ReplyContent) (wireContent, error) {
	var payload any
	switch c.Type {
	case content.TypeText:
		payload = c.Text
	case content.TypeImage, content.TypeEmoji, content.TypeVoice:
		payload = base64.StdEncoding.EncodeToString(c.Data)
	case content.TypeCommand:
		payload = c.Command
	case content.TypeHybrid:
		parts := make([]wireContent, len(c.Parts))
		for i, p := range c.Parts {
			wc, err := encodeContent(p)
			if err != nil {
				return wireContent{}, err
			}
			parts[i] = wc
		}
		payload = parts
	case content.TypeForward:
		nodes := make([]wireNode, len(c.Nodes))
		for i, n := range c.Nodes {
			wn, err := encodeNode(n)
			if err != nil {
				return wireContent{}, err
			}
			nodes[i] = wn
		}
		payload = nodes
	default:
		return wireContent{}, fmt.Errorf("%w: %q", ErrUnknownVariant, c.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return wireContent{}, err
	}
	return wireContent{Type: string(c.Type), Content: raw}, nil
}

func encodeNode(n content.ForwardNode) (wireNode, error) {
	if n.IsRef() {
		return wireNode{Ref: n.Ref}, nil
	}
	parts := make([]wireContent, len(n.Content))
	for i, c := range n.Content {
		wc, err := encodeContent(c)
		if err != nil {
			return wireNode{}, err
		}
		parts[i] = wc
	}
	return wireNode{UserID: n.UserID, Nickname: n.Nickname, Content: parts}, nil
}

func decodeContent(wc wireContent) (content.ReplyContent, error) {
	switch content.Type(wc.Type) {
	case content.TypeText:
		var text string
		if err := json.Unmarshal(wc.Content, &text); err != nil {
			return content.ReplyContent{}, fmt.Errorf("%w: text: %v", ErrMalformedFrame, err)
		}
		return content.ReplyContent{Type: content.TypeText, Text: text}, nil

	case content.TypeImage, content.TypeEmoji, content.TypeVoice:
		var enc string
		if err := json.Unmarshal(wc.Content, &enc); err != nil {
			return content.ReplyContent{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, wc.Type, err)
		}
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return content.ReplyContent{}, fmt.Errorf("%w: %s base64: %v", ErrMalformedFrame, wc.Type, err)
		}
		return content.ReplyContent{Type: content.Type(wc.Type), Data: data}, nil

	case content.TypeCommand:
		var args map[string]any
		if err := json.Unmarshal(wc.Content, &args); err != nil {
			return content.ReplyContent{}, fmt.Errorf("%w: command: %v", ErrMalformedFrame, err)
		}
		return content.ReplyContent{Type: content.TypeCommand, Command: args}, nil

	case content.TypeHybrid:
		var raw []wireContent
		if err := json.Unmarshal(wc.Content, &raw); err != nil {
			return content.ReplyContent{}, fmt.Errorf("%w: hybrid: %v", ErrMalformedFrame, err)
		}
		parts := make([]content.ReplyContent, len(raw))
		for i, inner := range raw {
			p, err := decodeContent(inner)
			if err != nil {
				return content.ReplyContent{}, err
			}
			parts[i] = p
		}
		return content.ReplyContent{Type: content.TypeHybrid, Parts: parts}, nil

	case content.TypeForward:
		var raw []wireNode
		if err := json.Unmarshal(wc.Content, &raw); err != nil {
			return content.ReplyContent{}, fmt.Errorf("%w: forward: %v", ErrMalformedFrame, err)
		}
		nodes := make([]content.ForwardNode, len(raw))
		for i, wn := range raw {
			n, err := decodeNode(wn)
			if err != nil {
				return content.ReplyContent{}, err
			}
			nodes[i] = n
		}
		return content.ReplyContent{Type: content.TypeForward, Nodes: nodes}, nil

	default:
		// Forward compatibility: unknown tags are reported, never guessed.
		return content.ReplyContent{}, fmt.Errorf("%w: %q", ErrUnknownVariant, wc.Type)
	}
}

func decodeNode(wn wireNode) (content.ForwardNode, error) {
	if wn.Ref != "" {
		return content.ForwardNode{Ref: wn.Ref}, nil
	}
	parts := make([]content.ReplyContent, len(wn.Content))
	for i, wc := range wn.Content {
		c, err := decodeContent(wc)
		if err != nil {
			return content.ForwardNode{}, err
		}
		parts[i] = c
	}
	return content.ForwardNode{UserID: wn.UserID, Nickname: wn.Nickname, Content: parts}, nil
}
