package queue

import "errors"

var (
	// ErrInvalidTransition reports a status change the item lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvariant reports an item whose results or error message disagree with its status.
	ErrInvariant = errors.New("item invariant violated")
	// ErrImmutableField reports a patch that tried to change an item's name or source.
	ErrImmutableField = errors.New("item name and source are immutable")
	// ErrDuplicateID reports an add with an id already present in the registry.
	ErrDuplicateID = errors.New("duplicate item id")
)
