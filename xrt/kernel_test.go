package xrt_test

import (
	"fmt"
	"testing"

	"github.com/gomlx/goxrt/xrt"
	"github.com/stretchr/testify/require"
)

func TestKernelVAdd(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device, xclbin := loadedDevice(t, r, vaddImage())
	kernel := capture(xrt.NewKernel(device, xclbin.UUID(), "vadd", xrt.Exclusive)).Test(t)
	fmt.Printf("%s\n", kernel)
	require.Equal(t, "vadd", kernel.Name())
	require.Equal(t, xrt.Exclusive, kernel.Mode())
	require.Equal(t, xclbin.UUID(), kernel.XclbinUUID())

	for argIdx := range 3 {
		groupID := capture(kernel.GroupID(argIdx)).Test(t)
		require.Equal(t, argIdx, groupID)
	}
	_, err := kernel.GroupID(3) // Scalar argument.
	requireKind(t, err, xrt.NotFound)
	_, err = kernel.GroupID(4)
	requireKind(t, err, xrt.OutOfRange)
	_, err = kernel.GroupID(-1)
	requireKind(t, err, xrt.OutOfRange)

	value := capture(kernel.ReadRegister(0x10)).Test(t)
	require.Equal(t, uint32(0), value)
	_, err = kernel.ReadRegister(0x11)
	requireKind(t, err, xrt.MalformedInput)
	_, err = kernel.ReadRegister(0x10000)
	requireKind(t, err, xrt.OutOfRange)

	// Exclusive compute units can't be opened again until released.
	_, err = xrt.NewKernel(device, xclbin.UUID(), "vadd", xrt.Shared)
	requireKind(t, err, xrt.RuntimeFailure)
	require.NoError(t, kernel.Destroy())
	require.NoError(t, kernel.Destroy())
	_, err = kernel.ReadRegister(0x10)
	require.Error(t, err)

	shared1 := capture(xrt.NewKernel(device, xclbin.UUID(), "vadd", xrt.Shared)).Test(t)
	shared2 := capture(xrt.NewKernel(device, xclbin.UUID(), "vadd:{vadd_1,vadd_2}", xrt.Shared)).Test(t)
	_, err = xrt.NewKernel(device, xclbin.UUID(), "vadd:vadd_2", xrt.Exclusive)
	requireKind(t, err, xrt.RuntimeFailure)
	require.NoError(t, shared1.Destroy())
	require.NoError(t, shared2.Destroy())
	exclusive2 := capture(xrt.NewKernel(device, xclbin.UUID(), "vadd:vadd_2", xrt.Exclusive)).Test(t)
	require.NoError(t, exclusive2.Destroy())
}

func TestNewKernelErrors(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device := capture(r.OpenDevice(0)).Test(t)
	vaddID := capture(xrt.ParseUUID(vaddUUID)).Test(t)

	_, err := xrt.NewKernel(device, vaddID, "", xrt.Exclusive)
	requireKind(t, err, xrt.MalformedInput)
	_, err = xrt.NewKernel(device, vaddID, "vadd", xrt.CUAccessMode(7))
	requireKind(t, err, xrt.MalformedInput)
	_, err = xrt.NewKernel(nil, vaddID, "vadd", xrt.Exclusive)
	requireKind(t, err, xrt.DeviceUnavailable)

	// Device not loaded.
	_, err = xrt.NewKernel(device, vaddID, "vadd", xrt.Exclusive)
	requireKind(t, err, xrt.BitstreamMismatch)

	// Device loaded with a different xclbin.
	counter := newXclbin(t, r, counterImage())
	_ = capture(device.LoadXclbin(counter)).Test(t)
	_, err = xrt.NewKernel(device, vaddID, "vadd", xrt.Exclusive)
	requireKind(t, err, xrt.BitstreamMismatch)
	_, err = xrt.NewKernel(device, counter.UUID(), "vadd", xrt.Exclusive)
	requireKind(t, err, xrt.NotFound)
	_, err = xrt.NewKernel(device, counter.UUID(), "counter:{counter_1,", xrt.Exclusive)
	requireKind(t, err, xrt.MalformedInput)

	// Validation order: empty name first, then the device.
	require.NoError(t, device.Destroy())
	_, err = xrt.NewKernel(device, counter.UUID(), "", xrt.Exclusive)
	requireKind(t, err, xrt.MalformedInput)
	_, err = xrt.NewKernel(device, counter.UUID(), "counter", xrt.Exclusive)
	requireKind(t, err, xrt.DeviceUnavailable)
}

func TestKernelAfterReload(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device, vadd := loadedDevice(t, r, vaddImage())
	kernel := capture(xrt.NewKernel(device, vadd.UUID(), "vadd", xrt.Shared)).Test(t)
	_ = capture(kernel.ReadRegister(0)).Test(t)

	// Reloading the same xclbin keeps the kernel usable.
	_ = capture(device.LoadXclbin(vadd)).Test(t)
	_ = capture(kernel.ReadRegister(0)).Test(t)

	// Loading a different one doesn't.
	counter := newXclbin(t, r, counterImage())
	_ = capture(device.LoadXclbin(counter)).Test(t)
	_, err := kernel.ReadRegister(0)
	requireKind(t, err, xrt.BitstreamMismatch)
	_, err = kernel.GroupID(0)
	requireKind(t, err, xrt.BitstreamMismatch)
	require.NoError(t, kernel.Destroy())

	counterKernel := capture(xrt.NewKernel(device, counter.UUID(), "counter", xrt.Exclusive)).Test(t)
	_ = capture(counterKernel.ReadRegister(0x10)).Test(t)
	require.NoError(t, counterKernel.Destroy())
}

func TestIP(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device, xclbin := loadedDevice(t, r, counterImage())

	_, err := xrt.NewIP(device, xclbin.UUID(), "")
	requireKind(t, err, xrt.MalformedInput)
	_, err = xrt.NewIP(device, xclbin.UUID(), "uart")
	requireKind(t, err, xrt.NotFound)
	vaddID := capture(xrt.ParseUUID(vaddUUID)).Test(t)
	_, err = xrt.NewIP(device, vaddID, "gpio")
	requireKind(t, err, xrt.BitstreamMismatch)

	ip := capture(xrt.NewIP(device, xclbin.UUID(), "gpio")).Test(t)
	fmt.Printf("%s\n", ip)
	require.Equal(t, "gpio", ip.Name())
	require.Equal(t, xclbin.UUID(), ip.XclbinUUID())
	require.NoError(t, ip.WriteRegister(0x10, 0xdeadbeef))
	require.Equal(t, uint32(0xdeadbeef), capture(ip.ReadRegister(0x10)).Test(t))
	require.Equal(t, uint32(0), capture(ip.ReadRegister(0x14)).Test(t))
	requireKind(t, ip.WriteRegister(0x12, 1), xrt.MalformedInput)
	requireKind(t, ip.WriteRegister(0x20000, 1), xrt.OutOfRange)

	// IPs are always exclusive.
	_, err = xrt.NewIP(device, xclbin.UUID(), "gpio")
	requireKind(t, err, xrt.RuntimeFailure)
	require.NoError(t, ip.Destroy())
	ip = capture(xrt.NewIP(device, xclbin.UUID(), "gpio")).Test(t)

	// Reloading with another xclbin invalidates the IP.
	_ = capture(device.LoadXclbin(newXclbin(t, r, vaddImage()))).Test(t)
	requireKind(t, ip.WriteRegister(0x10, 1), xrt.BitstreamMismatch)
	require.NoError(t, ip.Destroy())
}

func TestCUAccessMode(t *testing.T) {
	for _, mode := range []xrt.CUAccessMode{xrt.Exclusive, xrt.Shared} {
		require.True(t, mode.IsValid())
		require.Equal(t, mode, capture(xrt.ParseCUAccessMode(mode.String())).Test(t))
	}
	require.Equal(t, xrt.Shared, capture(xrt.ParseCUAccessMode("SHARED")).Test(t))
	_, err := xrt.ParseCUAccessMode("none")
	requireKind(t, err, xrt.MalformedInput)
}
