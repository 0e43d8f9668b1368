package roquet

import "strings"

// State is the tag of a single ring slot. It is a bit-set, multiple flags
// can be set on a slot at the same time.
type State uint8

const (
	// StateEmpty marks a slot without a valid payload, it is safe to
	// overwrite its data without losing information.
	StateEmpty State = 0x01

	// StatePending is reserved for a transactional push extension.
	// It is not set in steady state operation, readers treat it like
	// StateEnd for emptiness checks.
	StatePending State = 0x02

	// StateData marks a slot holding a value the consumer has not yet
	// harvested.
	StateData State = 0x04

	// StateOverflow is set when the producer met the end slot while it still
	// carried data, i.e. an eviction occurred at that position.
	StateOverflow State = 0x08

	// StateInspected is set by the consumer on the slot adjacent to its head
	// to make the producer's wrap-around unambiguous. The producer clears it
	// when it re-publishes data at that position.
	StateInspected State = 0x10

	// StateEnd marks the next position the producer will write. It is the
	// hole that separates head from tail in the ring, exactly one slot
	// carries it while the producer is not mid-step.
	StateEnd State = 0x80
)

// Has states whether any of the given flags is set.
func (s State) Has(flags State) bool {
	return s&flags != 0
}

func (s State) String() string {
	if s == 0 {
		return "none"
	}

	flagNames := []struct {
		flag State
		name string
	}{
		{StateEmpty, "empty"},
		{StatePending, "pending"},
		{StateData, "data"},
		{StateOverflow, "overflow"},
		{StateInspected, "inspected"},
		{StateEnd, "end"},
	}

	names := []string{}
	for _, fn := range flagNames {
		if s.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}

	return strings.Join(names, "|")
}
