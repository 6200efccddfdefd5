package content

import "fmt"

// ReplySet is an ordered sequence of ReplyContent forming one logical reply.
// Insertion order is the delivery order. The constructor copies its input so
// the caller may keep mutating its own slice.
type ReplySet []ReplyContent

// NewReplySet validates every entry and returns an independent copy.
func NewReplySet(parts ...ReplyContent) (ReplySet, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty reply set", ErrInvalidStructure)
	}
	out := make(ReplySet, len(parts))
	for i, p := range parts {
		if err := p.Validate(DefaultMaxForwardDepth); err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// Validate re-checks every entry with the given forward depth bound.
func (s ReplySet) Validate(maxDepth int) error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty reply set", ErrInvalidStructure)
	}
	for i, p := range s {
		if err := p.Validate(maxDepth); err != nil {
			return fmt.Errorf("reply %d: %w", i, err)
		}
	}
	return nil
}
