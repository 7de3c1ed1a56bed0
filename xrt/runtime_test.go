package xrt_test

import (
	"testing"

	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/sim"
	"github.com/stretchr/testify/require"
)

func TestGetRuntime(t *testing.T) {
	require.Contains(t, xrt.AvailableBackends(), sim.BackendName)
	r := capture(xrt.GetRuntime(sim.BackendName)).Test(t)
	require.Equal(t, sim.BackendName, r.Name())
	// Cached.
	require.Same(t, r, capture(xrt.GetRuntime(sim.BackendName)).Test(t))

	_, err := xrt.GetRuntime("opae")
	requireKind(t, err, xrt.NotFound)

	// Registering the same name twice fails.
	backend := capture(sim.New(sim.DefaultConfig())).Test(t)
	require.Error(t, xrt.RegisterBackend(sim.BackendName, backend))
	requireKind(t, xrt.RegisterBackend("", backend), xrt.MalformedInput)
}

func TestDefaultRuntime(t *testing.T) {
	t.Setenv(xrt.BackendEnv, sim.BackendName)
	r := capture(xrt.DefaultRuntime()).Test(t)
	require.Equal(t, sim.BackendName, r.Name())
	device := capture(xrt.OpenDevice(0)).Test(t)
	require.Same(t, r, device.Runtime())
	require.NoError(t, device.Destroy())

	t.Setenv(xrt.BackendEnv, "missing")
	_, err := xrt.DefaultRuntime()
	requireKind(t, err, xrt.NotFound)
}

func TestSetIni(t *testing.T) {
	backend := capture(sim.New(sim.DefaultConfig())).Test(t)
	r := capture(xrt.NewRuntime(backend, xrt.IniOptions{"Runtime.runtime_log": "console"})).Test(t)
	value, found := backend.Ini("Runtime.runtime_log")
	require.True(t, found)
	require.Equal(t, "console", value)

	// Last write wins.
	require.NoError(t, r.SetIni("Runtime.verbosity", "5"))
	require.NoError(t, r.SetIni("Runtime.verbosity", "7"))
	value, found = xrt.Ini("Runtime.verbosity")
	require.True(t, found)
	require.Equal(t, "7", value)
	value, _ = backend.Ini("Runtime.verbosity")
	require.Equal(t, "7", value)

	requireKind(t, r.SetIni("", "5"), xrt.MalformedInput)
	_, err := xrt.NewRuntime(backend, xrt.IniOptions{"": "x"})
	requireKind(t, err, xrt.MalformedInput)
	_, err = xrt.NewRuntime(nil, nil)
	requireKind(t, err, xrt.MalformedInput)
}
