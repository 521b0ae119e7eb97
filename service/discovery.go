package service

import (
	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/registry"
)

// DoesExist reports whether a Ready service named name, created under
// pattern, exists (spec §4.7 "Discovery"), without attaching to its
// dynamic state.
func DoesExist(cfg *config.View, name Name, pattern MessagingPattern) (bool, error) {
	return registry.DoesExist(cfg, name, pattern)
}

// List invokes fn once per Ready or MarkedForDestruction service
// descriptor. fn returning false stops the walk early.
func List(cfg *config.View, fn func(Descriptor) bool) error {
	return registry.List(cfg, fn)
}
