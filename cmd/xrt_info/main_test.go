package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/sim"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

// twoCardRuntime returns an isolated sim runtime with two devices.
func twoCardRuntime(t *testing.T) *xrt.Runtime {
	cfg := sim.DefaultConfig()
	second := cfg.Devices[0]
	second.BDF = "0000:b3:00.1"
	cfg.Devices = append(cfg.Devices, second)
	backend := must.M1(sim.New(cfg))
	r, err := xrt.NewRuntime(backend, nil)
	require.NoError(t, err)
	return r
}

func TestOpenAllDevices(t *testing.T) {
	r := twoCardRuntime(t)
	devices, err := openAllDevices(r, 64)
	require.NoError(t, err)
	defer destroyAll(devices)
	require.Len(t, devices, 2)
	require.Equal(t, "0000:b3:00.1", devices[1].BDF())
	require.NoError(t, printDevices(devices))

	devices, err = openAllDevices(r, 1)
	require.NoError(t, err)
	defer destroyAll(devices)
	require.Len(t, devices, 1)
}

func TestLoadDevices(t *testing.T) {
	r := twoCardRuntime(t)
	img := sim.Image{
		XSAName:       "xilinx_u250_gen3x16_xdma_shell_4_1",
		UUID:          "6f8c2a42-1d3b-4a4e-9b1c-0d2e3f4a5b6c",
		InterfaceUUID: sim.DefaultInterfaceUUID,
		Kernels:       []sim.ImageKernel{{Name: "vadd"}},
		IPs:           []sim.ImageIP{{Name: "vadd:vadd_1", BaseAddress: 0x1800000}},
	}
	xclbin, err := r.NewXclbin(must.M1(img.Encode()))
	require.NoError(t, err)
	defer func() { require.NoError(t, xclbin.Destroy()) }()
	printXclbin(xclbin)

	require.NoError(t, loadDevices(r, xclbin, []int{0, 1}, "vadd", xrt.Exclusive))
	for index := range 2 {
		device, err := r.OpenDevice(index)
		require.NoError(t, err)
		loaded, err := device.XclbinUUID()
		require.NoError(t, err)
		require.Equal(t, xclbin.UUID(), loaded)
		require.NoError(t, device.Destroy())
	}

	// Device #2 doesn't exist.
	err = loadDevices(r, xclbin, []int{0, 2}, "", xrt.Exclusive)
	require.ErrorIs(t, err, xrt.DeviceUnavailable)

	// Unknown compute unit.
	err = loadDevices(r, xclbin, []int{1}, "vadd:vadd_9", xrt.Shared)
	require.ErrorIs(t, err, xrt.NotFound)
}

func TestPrintReport(t *testing.T) {
	r := twoCardRuntime(t)
	device, err := r.OpenDevice(1)
	require.NoError(t, err)
	defer func() { require.NoError(t, device.Destroy()) }()
	for _, kind := range xrt.ReportKinds() {
		require.NoErrorf(t, printReport(device, kind), "report %s", kind)
	}
}

func TestXclbinCmdErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.xclbin")
	malformed := filepath.Join(t.TempDir(), "malformed.xclbin")
	require.NoError(t, os.WriteFile(malformed, []byte("not an xclbin"), 0o644))
	for _, filePath := range []string{missing, malformed} {
		rootCmd := newRootCmd()
		rootCmd.SetArgs([]string{"--backend=" + sim.BackendName, "xclbin", filePath})
		require.NotPanics(t, func() {
			require.Errorf(t, rootCmd.Execute(), "xclbin %s", filePath)
		})
	}
}
