package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Default())

	polling := newStubSource("polling", false)
	rt := newStubSource("saxo", true)

	require.NoError(t, reg.Register(polling))
	require.NoError(t, reg.Register(rt))
	require.Error(t, reg.Register(newStubSource("polling", false)), "duplicate name rejected")

	src, ok := reg.Get("saxo")
	require.True(t, ok)
	assert.Equal(t, "saxo", src.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "polling", all[0].Name(), "registration order kept")
	assert.Equal(t, "saxo", all[1].Name())

	realtime := reg.RealtimeSources()
	require.Len(t, realtime, 1)
	assert.Equal(t, "saxo", realtime[0].Name())
}

func TestRegistryDefault(t *testing.T) {
	reg := NewRegistry()
	polling := newStubSource("polling", false)
	require.NoError(t, reg.Register(polling))

	require.Error(t, reg.SetDefault("missing"))
	require.NoError(t, reg.SetDefault("polling"))
	require.NotNil(t, reg.Default())
	assert.Equal(t, "polling", reg.Default().Name())
}
