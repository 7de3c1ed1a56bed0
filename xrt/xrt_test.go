package xrt_test

// Common initialization and testing tools for the tests that run on a backend.

import (
	"flag"
	"fmt"
	"testing"

	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/sim"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var flagBackend = flag.String("backend", sim.BackendName,
	"backend to run tests on: with \"sim\" each test gets its own emulated devices")

func init() {
	klog.InitFlags(nil)
}

type errTester[T any] struct {
	value T
	err   error
}

// capture is a shortcut to test that there is no error and return the value.
func capture[T any](value T, err error) errTester[T] {
	return errTester[T]{value, err}
}

func (e errTester[T]) Test(t *testing.T) T {
	require.NoError(t, e.err)
	return e.value
}

// requireKind checks that err is an *xrt.Error of the given kind.
func requireKind(t *testing.T, err error, kind xrt.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := xrt.KindOf(err)
	require.True(t, ok)
	require.Equalf(t, kind, got, "unexpected error kind for: %+v", err)
	require.ErrorIs(t, err, kind)
}

// getRuntime returns the runtime to test on.
func getRuntime(t *testing.T) *xrt.Runtime {
	if *flagBackend == sim.BackendName {
		backend := must.M1(sim.New(sim.DefaultConfig()))
		return capture(xrt.NewRuntime(backend, nil)).Test(t)
	}
	return capture(xrt.GetRuntime(*flagBackend)).Test(t)
}

// requireSim skips tests that depend on sim xclbin images.
func requireSim(t *testing.T) {
	if *flagBackend != sim.BackendName {
		t.Skipf("test requires the %q backend, running on %q", sim.BackendName, *flagBackend)
	}
}

const (
	vaddUUID    = "6f8c2a42-1d3b-4a4e-9b1c-0d2e3f4a5b6c"
	counterUUID = "0b5d3e8f-7a61-4c2d-8e9f-a1b2c3d4e5f6"
)

// vaddImage is a vector addition kernel with two compute units.
func vaddImage() sim.Image {
	gmem := func(name string, offset uint64, bank int32) sim.ImageArg {
		return sim.ImageArg{
			Name: name, Offset: offset, Size: 8, HostType: "int*", Port: "M_AXI_GMEM",
			Mems: []sim.ImageMem{{Tag: fmt.Sprintf("DDR[%d]", bank), Index: bank, Type: "ddr4", Used: true,
				SizeKB: 16 * 1024 * 1024}},
		}
	}
	return sim.Image{
		XSAName:       "xilinx_u250_gen3x16_xdma_shell_4_1",
		UUID:          vaddUUID,
		InterfaceUUID: sim.DefaultInterfaceUUID,
		Kernels: []sim.ImageKernel{{
			Name: "vadd",
			Args: []sim.ImageArg{
				gmem("in1", 0x10, 0),
				gmem("in2", 0x1c, 1),
				gmem("out", 0x28, 2),
				{Name: "size", Offset: 0x34, Size: 4, HostType: "unsigned int", Port: "S_AXI_CONTROL"},
			},
		}},
		IPs: []sim.ImageIP{
			{Name: "vadd:vadd_1", BaseAddress: 0x1800000},
			{Name: "vadd:vadd_2", BaseAddress: 0x1810000},
		},
	}
}

// counterImage has one kernel without listed compute units and one standalone IP.
func counterImage() sim.Image {
	return sim.Image{
		XSAName: "xilinx_u250_gen3x16_xdma_shell_4_1",
		UUID:    counterUUID,
		Kernels: []sim.ImageKernel{{Name: "counter"}},
		IPs:     []sim.ImageIP{{Name: "gpio", BaseAddress: 0x2000000}},
	}
}

// newXclbin parses the sim image, the test fails on error.
func newXclbin(t *testing.T, r *xrt.Runtime, img sim.Image) *xrt.Xclbin {
	data := must.M1(img.Encode())
	return capture(r.NewXclbin(data)).Test(t)
}

// loadedDevice opens device 0 and loads it with the image.
func loadedDevice(t *testing.T, r *xrt.Runtime, img sim.Image) (*xrt.Device, *xrt.Xclbin) {
	device := capture(r.OpenDevice(0)).Test(t)
	xclbin := newXclbin(t, r, img)
	u := capture(device.LoadXclbin(xclbin)).Test(t)
	require.Equal(t, xclbin.UUID(), u)
	return device, xclbin
}
