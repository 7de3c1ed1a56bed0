package xrt_test

import (
	"fmt"
	"testing"

	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOpenDevice(t *testing.T) {
	r := getRuntime(t)
	device := capture(r.OpenDevice(0)).Test(t)
	fmt.Printf("%s\n", device)
	require.Equal(t, 0, device.Index())
	require.NotEmpty(t, device.Name())
	require.NotEmpty(t, device.BDF())

	interfaceUUID := capture(device.InterfaceUUID()).Test(t)
	require.False(t, interfaceUUID.IsZero())
	clock := capture(device.MaxClockFrequencyMHz()).Test(t)
	require.Greater(t, clock, uint64(0))
	_ = capture(device.KDMA()).Test(t)
	_ = capture(device.M2M()).Test(t)
	_ = capture(device.NoDMA()).Test(t)
	offline := capture(device.Offline()).Test(t)
	require.False(t, offline)

	// Same device by BDF.
	byBDF := capture(r.OpenDeviceByBDF(device.BDF())).Test(t)
	require.Equal(t, -1, byBDF.Index())
	require.Equal(t, device.Name(), byBDF.Name())
	require.Equal(t, interfaceUUID, capture(byBDF.InterfaceUUID()).Test(t))

	require.NoError(t, byBDF.Destroy())
	require.NoError(t, device.Destroy())
	// Destroy is idempotent.
	require.NoError(t, device.Destroy())
	_, err := device.InterfaceUUID()
	requireKind(t, err, xrt.DeviceUnavailable)
}

func TestOpenDeviceErrors(t *testing.T) {
	r := getRuntime(t)
	_, err := r.OpenDevice(-1)
	requireKind(t, err, xrt.MalformedInput)
	_, err = r.OpenDevice(1000)
	requireKind(t, err, xrt.DeviceUnavailable)
	_, err = r.OpenDeviceByBDF("")
	requireKind(t, err, xrt.MalformedInput)
	_, err = r.OpenDeviceByBDF("ffff:ff:1f.7")
	requireKind(t, err, xrt.DeviceUnavailable)
}

func TestLoadXclbin(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device := capture(r.OpenDevice(0)).Test(t)
	require.False(t, capture(device.IsLoaded()).Test(t))
	require.True(t, capture(device.XclbinUUID()).Test(t).IsZero())

	xclbin := newXclbin(t, r, vaddImage())
	u := capture(device.LoadXclbin(xclbin)).Test(t)
	require.Equal(t, vaddUUID, u.String())
	require.True(t, capture(device.IsLoaded()).Test(t))
	require.Equal(t, u, capture(device.XclbinUUID()).Test(t))

	// The loaded xclbin survives the destruction of the Xclbin object.
	require.NoError(t, xclbin.Destroy())
	require.Equal(t, u, capture(device.XclbinUUID()).Test(t))
	_, err := device.LoadXclbin(xclbin)
	requireKind(t, err, xrt.MalformedInput)
	_, err = device.LoadXclbin(nil)
	requireKind(t, err, xrt.MalformedInput)

	regions := capture(device.DynamicRegions()).Test(t)
	require.Equal(t, u, capture(regions.XclbinUUID()).Test(t))
}

func TestLoadXclbinRejected(t *testing.T) {
	requireSim(t)
	cfg := sim.DefaultConfig()
	offline := cfg.Devices[0]
	offline.BDF = "0000:66:00.1"
	offline.Offline = true
	cfg.Devices = append(cfg.Devices, offline)
	r := capture(xrt.NewRuntime(capture(sim.New(cfg)).Test(t), nil)).Test(t)

	// Image built for another shell.
	img := vaddImage()
	img.InterfaceUUID = "00000000-0000-0000-0000-000000000001"
	device := capture(r.OpenDevice(0)).Test(t)
	_, err := device.LoadXclbin(newXclbin(t, r, img))
	requireKind(t, err, xrt.ProgrammingFailure)
	require.False(t, capture(device.IsLoaded()).Test(t))

	// Offline device.
	offlineDevice := capture(r.OpenDevice(1)).Test(t)
	require.True(t, capture(offlineDevice.Offline()).Test(t))
	_, err = offlineDevice.LoadXclbin(newXclbin(t, r, vaddImage()))
	requireKind(t, err, xrt.ProgrammingFailure)

	// Nil device.
	var nilDevice *xrt.Device
	_, err = nilDevice.LoadXclbin(newXclbin(t, r, vaddImage()))
	requireKind(t, err, xrt.DeviceUnavailable)
}

func TestDeviceTelemetry(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device := capture(r.OpenDevice(0)).Test(t)

	electrical := capture(device.Electrical()).Test(t)
	assert.InDelta(t, 24.5, electrical.PowerConsumptionWatts, 1e-3)
	assert.InDelta(t, 225.0, electrical.PowerConsumptionMaxWatts, 1e-3)
	// Only rails with a sensor present.
	require.Len(t, electrical.PowerRails, 2)
	assert.Equal(t, "12v_pex", electrical.PowerRails[0].ID)
	assert.InDelta(t, 1.2, electrical.PowerRails[0].Current.Amps, 1e-3)
	assert.False(t, electrical.PowerRails[1].Current.IsPresent)
	assert.True(t, electrical.PowerRails[1].Voltage.IsPresent)

	thermals := capture(device.Thermal()).Test(t)
	require.Len(t, thermals, 2)
	assert.Equal(t, "fpga0", thermals[1].LocationID)
	assert.Equal(t, uint8(52), thermals[1].TempC)

	mechanical := capture(device.Mechanical()).Test(t)
	require.Len(t, mechanical.Fans, 1)
	assert.Equal(t, uint16(3500), mechanical.Fans[0].SpeedRPM)

	memory := capture(device.Memory()).Test(t)
	require.NotNil(t, memory.Board)
	require.Len(t, memory.Board.Memory.Memories, 2)
	bank := memory.Board.Memory.Memories[0]
	assert.Equal(t, uint64(0x4000000000), capture(bank.Base()).Test(t))
	assert.Equal(t, uint64(0x400000000), capture(bank.Range()).Test(t))
	assert.True(t, bank.Enabled)

	platform := capture(device.Platform()).Test(t)
	assert.Equal(t, device.Name(), platform.StaticRegion.VBNV)
	assert.Equal(t, capture(device.InterfaceUUID()).Test(t).String(), platform.StaticRegion.InterfaceUUID)
	assert.Equal(t, uint8(4), platform.OffChipBoardInfo.DDRCount)

	pcie := capture(device.PCIeInfo()).Test(t)
	assert.Equal(t, uint8(16), pcie.ExpressLaneWidthCount)

	host := capture(device.Host()).Test(t)
	assert.NotEmpty(t, host.Version)

	// Unloaded device reports the zero UUID.
	regions := capture(device.DynamicRegions()).Test(t)
	require.True(t, capture(regions.XclbinUUID()).Test(t).IsZero())

	for _, kind := range xrt.ReportKinds() {
		report := capture(device.Report(kind)).Test(t)
		require.NotEmptyf(t, report, "report %s", kind)
	}
}

func TestDeviceConcurrentReaders(t *testing.T) {
	requireSim(t)
	r := getRuntime(t)
	device, xclbin := loadedDevice(t, r, vaddImage())
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			for range 100 {
				u, err := device.XclbinUUID()
				if err != nil {
					return err
				}
				if u != xclbin.UUID() {
					return fmt.Errorf("unexpected loaded xclbin %s", u)
				}
				if _, err = device.Thermal(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
