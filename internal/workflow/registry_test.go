package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsHandlersInRegistrationOrder(t *testing.T) {
	registry := NewRegistry()

	var order []int
	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		order = append(order, 1)
		return nil
	})
	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		order = append(order, 2)
		return nil
	})

	handlers := registry.Handlers("deal.created")
	require.Len(t, handlers, 2)

	for _, h := range handlers {
		require.NoError(t, h(context.Background(), nil))
	}
	require.Equal(t, []int{1, 2}, order)
}

func TestRegistryReturnsEmptyForUnknownType(t *testing.T) {
	registry := NewRegistry()
	require.Empty(t, registry.Handlers("agreement.signed"))
}

func TestRegistryKeepsEventTypesSeparate(t *testing.T) {
	registry := NewRegistry()

	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		return nil
	})
	registry.Register("project.created", func(ctx context.Context, payload json.RawMessage) error {
		return nil
	})

	require.Len(t, registry.Handlers("deal.created"), 1)
	require.Len(t, registry.Handlers("project.created"), 1)
	require.Empty(t, registry.Handlers("deal.updated"))
}
