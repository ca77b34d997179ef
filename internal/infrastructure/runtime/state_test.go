package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/reglet-dev/lantern/internal/domain/values"
	"github.com/reglet-dev/lantern/internal/infrastructure/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionState_OpensBackendOnce(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
		seen  values.RunID
	)
	state := NewExtensionState(nil, func(id values.RunID) (*hostapi.Backend, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		seen = id
		return hostapi.New(capabilities.NewGrant(), hostapi.Options{RunID: id.String()})
	})

	var wg sync.WaitGroup
	backends := make([]*hostapi.Backend, 8)
	for i := range backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := state.API()
			assert.NoError(t, err)
			backends[i] = b
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, state.RunID(), seen)
	for _, b := range backends {
		assert.Same(t, backends[0], b)
	}
}

func TestExtensionState_OpenErrorIsSticky(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	state := NewExtensionState(nil, func(values.RunID) (*hostapi.Backend, error) {
		calls++
		return nil, boom
	})

	_, err := state.API()
	require.ErrorIs(t, err, boom)
	_, err = state.API()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestExtensionState_ArgsAreCopied(t *testing.T) {
	t.Parallel()
	args := []string{"--test", "-x"}
	state := NewExtensionState(args, nil)

	args[0] = "changed"
	got := state.Args()
	assert.Equal(t, []string{"--test", "-x"}, got)

	got[1] = "changed"
	assert.Equal(t, []string{"--test", "-x"}, state.Args())
	assert.NotEmpty(t, state.RunID().String())
}

func TestStateFromContext(t *testing.T) {
	t.Parallel()
	_, ok := StateFromContext(context.Background())
	assert.False(t, ok)

	state := NewExtensionState(nil, nil)
	got, ok := StateFromContext(WithState(context.Background(), state))
	require.True(t, ok)
	assert.Same(t, state, got)
}
