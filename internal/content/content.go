// Package content defines the reply content data model: the tagged
// ReplyContent union, forward nodes, and reply sets, with total and
// deterministic validation. The package performs no I/O; the wire mapping
// lives in internal/frame.
package content

import (
	"errors"
	"fmt"
)

// Type discriminates the ReplyContent variants.
type Type string

const (
	TypeText    Type = "text"
	TypeImage   Type = "image"
	TypeEmoji   Type = "emoji"
	TypeVoice   Type = "voice"
	TypeCommand Type = "command"
	TypeHybrid  Type = "hybrid"
	TypeForward Type = "forward"
)

// DefaultMaxForwardDepth bounds how deep FORWARD content may nest.
const DefaultMaxForwardDepth = 3

// Validation errors. These are always caller bugs, never retried.
var (
	ErrInvalidContent   = errors.New("invalid content")
	ErrInvalidStructure = errors.New("invalid structure")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrDepthExceeded    = errors.New("forward depth exceeded")
)

// ReplyContent is one unit of message content. It is a closed tagged union:
// exactly the fields belonging to Type are set, everything else is zero.
// Values built through the constructors (or re-checked with Validate) always
// satisfy the structural invariants:
//
//   - TEXT has non-empty Text; IMAGE/EMOJI/VOICE have non-empty Data.
//   - COMMAND values are restricted to primitives, maps and slices thereof.
//   - HYBRID elements are leaves (no nested HYBRID/FORWARD/COMMAND).
//   - FORWARD nesting never exceeds the configured max depth.
type ReplyContent struct {
	Type    Type
	Text    string         // TypeText
	Data    []byte         // TypeImage, TypeEmoji, TypeVoice
	Command map[string]any // TypeCommand
	Parts   []ReplyContent // TypeHybrid
	Nodes   []ForwardNode  // TypeForward
}

// IsLeaf reports whether the variant carries no nested ReplyContent.
func (c ReplyContent) IsLeaf() bool {
	switch c.Type {
	case TypeText, TypeImage, TypeEmoji, TypeVoice:
		return true
	}
	return false
}

// NewText builds a TEXT content. The string must be non-empty.
func NewText(text string) (ReplyContent, error) {
	if text == "" {
		return ReplyContent{}, fmt.Errorf("%w: empty text", ErrInvalidContent)
	}
	return ReplyContent{Type: TypeText, Text: text}, nil
}

// NewImage builds an IMAGE content from a raw binary payload.
func NewImage(data []byte) (ReplyContent, error) {
	return newMedia(TypeImage, data)
}

// NewEmoji builds an EMOJI content from a raw binary payload.
func NewEmoji(data []byte) (ReplyContent, error) {
	return newMedia(TypeEmoji, data)
}

// NewVoice builds a VOICE content from a raw binary payload.
func NewVoice(data []byte) (ReplyContent, error) {
	return newMedia(TypeVoice, data)
}

func newMedia(t Type, data []byte) (ReplyContent, error) {
	if len(data) == 0 {
		return ReplyContent{}, fmt.Errorf("%w: empty %s payload", ErrInvalidContent, t)
	}
	return ReplyContent{Type: t, Data: data}, nil
}

// NewCommand builds a COMMAND content. Values are restricted to strings,
// numbers, booleans, nil, and maps/slices of the same; embedded ReplyContent
// is not allowed.
func NewCommand(args map[string]any) (ReplyContent, error) {
	if len(args) == 0 {
		return ReplyContent{}, fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	for k, v := range args {
		if err := checkCommandValue(v); err != nil {
			return ReplyContent{}, fmt.Errorf("%w: key %q: %v", ErrInvalidCommand, k, err)
		}
	}
	return ReplyContent{Type: TypeCommand, Command: args}, nil
}

// NewHybrid builds a HYBRID content. Every element must be a leaf variant;
// HYBRID/FORWARD/COMMAND elements are rejected, not flattened.
func NewHybrid(parts ...ReplyContent) (ReplyContent, error) {
	if len(parts) == 0 {
		return ReplyContent{}, fmt.Errorf("%w: empty hybrid", ErrInvalidStructure)
	}
	for i, p := range parts {
		if !p.IsLeaf() {
			return ReplyContent{}, fmt.Errorf("%w: hybrid element %d is %s, want a leaf", ErrInvalidStructure, i, p.Type)
		}
		if err := p.Validate(DefaultMaxForwardDepth); err != nil {
			return ReplyContent{}, err
		}
	}
	out := make([]ReplyContent, len(parts))
	copy(out, parts)
	return ReplyContent{Type: TypeHybrid, Parts: out}, nil
}

// NewForward builds a FORWARD content with the default max nesting depth.
func NewForward(nodes ...ForwardNode) (ReplyContent, error) {
	return NewForwardMax(DefaultMaxForwardDepth, nodes...)
}

// NewForwardMax builds a FORWARD content with an explicit max nesting depth.
// Depth is checked at construction so callers fail fast, not at serialization.
func NewForwardMax(maxDepth int, nodes ...ForwardNode) (ReplyContent, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxForwardDepth
	}
	if len(nodes) == 0 {
		return ReplyContent{}, fmt.Errorf("%w: empty forward", ErrInvalidStructure)
	}
	out := make([]ForwardNode, len(nodes))
	copy(out, nodes)
	c := ReplyContent{Type: TypeForward, Nodes: out}
	if err := c.validate(1, maxDepth); err != nil {
		return ReplyContent{}, err
	}
	return c, nil
}

// Validate re-checks every structural invariant. The frame codec calls this
// on decoded content because the wire is untrusted input.
func (c ReplyContent) Validate(maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxForwardDepth
	}
	return c.validate(1, maxDepth)
}

// validate walks the union. depth counts FORWARD nesting levels: the
// outermost FORWARD validates at depth 1.
func (c ReplyContent) validate(depth, maxDepth int) error {
	switch c.Type {
	case TypeText:
		if c.Text == "" {
			return fmt.Errorf("%w: empty text", ErrInvalidContent)
		}
	case TypeImage, TypeEmoji, TypeVoice:
		if len(c.Data) == 0 {
			return fmt.Errorf("%w: empty %s payload", ErrInvalidContent, c.Type)
		}
	case TypeCommand:
		if len(c.Command) == 0 {
			return fmt.Errorf("%w: empty command", ErrInvalidCommand)
		}
		for k, v := range c.Command {
			if err := checkCommandValue(v); err != nil {
				return fmt.Errorf("%w: key %q: %v", ErrInvalidCommand, k, err)
			}
		}
	case TypeHybrid:
		if len(c.Parts) == 0 {
			return fmt.Errorf("%w: empty hybrid", ErrInvalidStructure)
		}
		for i, p := range c.Parts {
			if !p.IsLeaf() {
				return fmt.Errorf("%w: hybrid element %d is %s, want a leaf", ErrInvalidStructure, i, p.Type)
			}
			if err := p.validate(depth, maxDepth); err != nil {
				return err
			}
		}
	case TypeForward:
		if depth > maxDepth {
			return fmt.Errorf("%w: depth %d > max %d", ErrDepthExceeded, depth, maxDepth)
		}
		if len(c.Nodes) == 0 {
			return fmt.Errorf("%w: empty forward", ErrInvalidStructure)
		}
		for i, n := range c.Nodes {
			if err := n.validate(depth, maxDepth); err != nil {
				return fmt.Errorf("forward node %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStructure, c.Type)
	}
	return nil
}

// checkCommandValue enforces the closed value universe of COMMAND payloads.
func checkCommandValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case map[string]any:
		for k, nested := range val {
			if err := checkCommandValue(nested); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	case []any:
		for i, nested := range val {
			if err := checkCommandValue(nested); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
