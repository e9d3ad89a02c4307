package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
)

func echoDescriptor() Descriptor {
	return Descriptor{
		Name:        "echo",
		Description: "Echo the arguments back",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return args, nil
		},
	}
}

// TestRegistry_Register tests registration validation.
func TestRegistry_Register(t *testing.T) {
	reg := New(slog.Default(), nil)

	require.NoError(t, reg.Register(echoDescriptor()))
	require.Equal(t, 1, reg.Len())

	t.Run("duplicate name", func(t *testing.T) {
		err := reg.Register(echoDescriptor())
		require.ErrorIs(t, err, srverrors.ErrToolExists)
	})

	t.Run("missing name", func(t *testing.T) {
		err := reg.Register(Descriptor{Handler: echoDescriptor().Handler})
		require.Error(t, err)
	})

	t.Run("missing handler", func(t *testing.T) {
		err := reg.Register(Descriptor{Name: "no_handler"})
		require.Error(t, err)
	})
}

// TestRegistry_Freeze tests that a frozen registry rejects registration but
// keeps serving lookups.
func TestRegistry_Freeze(t *testing.T) {
	reg := New(slog.Default(), nil)
	require.NoError(t, reg.Register(echoDescriptor()))
	require.False(t, reg.Frozen())

	reg.Freeze()
	require.True(t, reg.Frozen())

	err := reg.Register(Descriptor{Name: "late", Handler: echoDescriptor().Handler})
	require.ErrorIs(t, err, srverrors.ErrRegistryFrozen)

	_, ok := reg.Get("echo")
	require.True(t, ok)
	require.Equal(t, 1, reg.Len())

	// Idempotent.
	reg.Freeze()
	require.True(t, reg.Frozen())
}

// TestRegistry_List tests registration-order listing.
func TestRegistry_List(t *testing.T) {
	reg := New(slog.Default(), nil)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		d := echoDescriptor()
		d.Name = name
		require.NoError(t, reg.Register(d))
	}

	list := reg.List()
	require.Len(t, list, 3)
	require.Equal(t, "charlie", list[0].Name)
	require.Equal(t, "alpha", list[1].Name)
	require.Equal(t, "bravo", list[2].Name)
}

// TestRegistry_Invoke tests the shared invocation core outcomes.
func TestRegistry_Invoke(t *testing.T) {
	reg := New(slog.Default(), nil)
	require.NoError(t, reg.Register(echoDescriptor()))
	require.NoError(t, reg.Register(Descriptor{
		Name: "broken",
		Handler: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("upstream unavailable")
		},
	}))
	require.NoError(t, reg.Register(Descriptor{
		Name: "panics",
		Handler: func(context.Context, map[string]any) (map[string]any, error) {
			panic("boom")
		},
	}))
	reg.Freeze()

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		result, err := reg.Invoke(ctx, "echo", map[string]any{"x": float64(1)})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"x": float64(1)}, result)
	})

	t.Run("unknown tool names the tool", func(t *testing.T) {
		_, err := reg.Invoke(ctx, "does_not_exist", nil)
		require.ErrorIs(t, err, srverrors.ErrToolNotFound)

		var toolErr *srverrors.ToolError
		require.ErrorAs(t, err, &toolErr)
		require.Equal(t, "does_not_exist", toolErr.Tool)
	})

	t.Run("handler error wrapped", func(t *testing.T) {
		_, err := reg.Invoke(ctx, "broken", nil)
		require.Error(t, err)
		require.NotErrorIs(t, err, srverrors.ErrToolNotFound)

		var toolErr *srverrors.ToolError
		require.ErrorAs(t, err, &toolErr)
		require.Equal(t, "broken", toolErr.Tool)
		require.Contains(t, err.Error(), "upstream unavailable")
	})

	t.Run("handler panic contained", func(t *testing.T) {
		_, err := reg.Invoke(ctx, "panics", nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "handler panic")
	})
}
