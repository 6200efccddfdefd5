package content

import "fmt"

// ForwardNode is one element of a FORWARD content. It takes one of two
// shapes:
//
//   - Reference node: Ref names the opaque id of a previously sent message.
//     The receiving side resolves it; the transport never does.
//   - Generative node: UserID/Nickname attribute a synthesized bundle of
//     nested content, which may itself contain FORWARD entries subject to
//     the depth bound.
type ForwardNode struct {
	Ref      string
	UserID   string
	Nickname string
	Content  []ReplyContent
}

// IsRef reports whether the node references an existing message.
func (n ForwardNode) IsRef() bool {
	return n.Ref != ""
}

// NewRefNode builds a reference node pointing at an existing message id.
func NewRefNode(messageID string) (ForwardNode, error) {
	if messageID == "" {
		return ForwardNode{}, fmt.Errorf("%w: empty forward reference id", ErrInvalidContent)
	}
	return ForwardNode{Ref: messageID}, nil
}

// NewNode builds a generative node carrying nested content attributed to a
// user. Depth validation happens when the node is placed into a FORWARD via
// NewForward / NewForwardMax.
func NewNode(userID, nickname string, parts ...ReplyContent) (ForwardNode, error) {
	if userID == "" {
		return ForwardNode{}, fmt.Errorf("%w: generative node needs a user id", ErrInvalidContent)
	}
	if len(parts) == 0 {
		return ForwardNode{}, fmt.Errorf("%w: generative node needs content", ErrInvalidStructure)
	}
	out := make([]ReplyContent, len(parts))
	copy(out, parts)
	return ForwardNode{UserID: userID, Nickname: nickname, Content: out}, nil
}

// validate checks one node at the given FORWARD nesting depth. Nested
// FORWARD entries validate at depth+1.
func (n ForwardNode) validate(depth, maxDepth int) error {
	if n.IsRef() {
		if n.UserID != "" || len(n.Content) > 0 {
			return fmt.Errorf("%w: reference node must not carry nested content", ErrInvalidStructure)
		}
		return nil
	}
	if n.UserID == "" {
		return fmt.Errorf("%w: generative node needs a user id", ErrInvalidContent)
	}
	if len(n.Content) == 0 {
		return fmt.Errorf("%w: generative node needs content", ErrInvalidStructure)
	}
	for i, c := range n.Content {
		d := depth
		if c.Type == TypeForward {
			d = depth + 1
		}
		if err := c.validate(d, maxDepth); err != nil {
			return fmt.Errorf("content %d: %w", i, err)
		}
	}
	return nil
}
