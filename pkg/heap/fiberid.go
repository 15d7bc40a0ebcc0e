package heap

import "github.com/google/uuid"

// NewFiberID mints a stable identifier for a freshly allocated Fiber.
// Handles get reused once a fiber is released and its slot returns to
// a free list, so trace output and tests need an id independent of
// handle reuse to refer to "the fiber that did X" across a run.
func NewFiberID() FiberID {
	return FiberID(uuid.New())
}
