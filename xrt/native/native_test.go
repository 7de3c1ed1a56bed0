package native

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/gomlx/goxrt/xrt"
	"github.com/stretchr/testify/require"
)

var flagXclbin = flag.String("xclbin", "", "xclbin file to load in device 0, it must have a kernel named by -kernel")
var flagKernel = flag.String("kernel", "vadd", "kernel of the -xclbin file to open")

// openDevice opens device 0, or skips the test if the host has no XRT device.
func openDevice(t *testing.T) *xrt.Device {
	r, err := xrt.GetRuntime(BackendName)
	require.NoError(t, err)
	device, err := r.OpenDevice(0)
	if errors.Is(err, xrt.DeviceUnavailable) {
		t.Skipf("no XRT device available: %v", err)
	}
	require.NoError(t, err)
	return device
}

func TestDevice(t *testing.T) {
	device := openDevice(t)
	defer func() { require.NoError(t, device.Destroy()) }()
	fmt.Printf("%s\n", device)
	require.NotEmpty(t, device.Name())
	require.NotEmpty(t, device.BDF())
	interfaceUUID, err := device.InterfaceUUID()
	require.NoError(t, err)
	fmt.Printf("\tinterface UUID: %s\n", interfaceUUID)
	clock, err := device.MaxClockFrequencyMHz()
	require.NoError(t, err)
	fmt.Printf("\tmax clock: %d MHz\n", clock)
	host, err := device.Host()
	require.NoError(t, err)
	fmt.Printf("\tXRT version: %s\n", host.Version)
}

func TestMalformedXclbin(t *testing.T) {
	r, err := xrt.GetRuntime(BackendName)
	require.NoError(t, err)
	for _, data := range [][]byte{
		[]byte("not an xclbin"),
		// Valid magic, truncated header.
		[]byte("xclbin2\x00\x01\x02"),
	} {
		xclbin, err := r.NewXclbin(data)
		require.ErrorIs(t, err, xrt.MalformedInput)
		require.Nil(t, xclbin)
	}
}

func TestLoadAndOpenKernel(t *testing.T) {
	if *flagXclbin == "" {
		t.Skip("no -xclbin given")
	}
	device := openDevice(t)
	data, err := os.ReadFile(*flagXclbin)
	require.NoError(t, err)
	r, err := xrt.GetRuntime(BackendName)
	require.NoError(t, err)
	xclbin, err := r.NewXclbin(data)
	require.NoError(t, err)
	fmt.Printf("%s\n", xclbin)
	u, err := device.LoadXclbin(xclbin)
	require.NoError(t, err)
	require.Equal(t, xclbin.UUID(), u)

	kernel, err := xrt.NewKernel(device, u, *flagKernel, xrt.Exclusive)
	require.NoError(t, err)
	_, err = kernel.ReadRegister(0)
	require.NoError(t, err)
	require.NoError(t, kernel.Destroy())
}
