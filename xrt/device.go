package xrt

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device is an open FPGA card (or an emulated one, depending on the backend).
//
// The device is opened by index (Runtime.OpenDevice) or by PCIe address (Runtime.OpenDeviceByBDF),
// programmed with LoadXclbin, and then kernels and IPs of the loaded xclbin can be opened with
// NewKernel and NewIP.
//
// Read-only accessors can be called concurrently. LoadXclbin and the creation of kernels and IPs are
// serialized by the Device.
type Device struct {
	runtime *Runtime

	// mu serializes mutating calls: loading xclbins and opening kernels/IPs. It also protects handle.
	mu     sync.RWMutex
	handle DeviceHandle

	index     int // -1 if opened by BDF.
	name, bdf string
}

// newDevice wraps the handle. Identity information is cached: failures to retrieve it are not fatal.
func newDevice(r *Runtime, handle DeviceHandle, index int) *Device {
	d := &Device{runtime: r, handle: handle, index: index}
	var err error
	d.name, err = handle.Name()
	if err != nil {
		// Non-fatal
		klog.Errorf("Failed to retrieve name of device %d (%s): %v", index, r, err)
	}
	d.bdf, err = handle.BDF()
	if err != nil {
		// Non-fatal
		klog.Errorf("Failed to retrieve BDF of device %d (%s): %v", index, r, err)
	}
	runtime.SetFinalizer(d, func(d *Device) { d.destroyOrLog() })
	klog.V(1).Infof("%s: opened %s", r, d)
	return d
}

// Destroy closes the device and releases its resources; the Device is no longer valid.
// It is a no-op if already destroyed.
// This is automatically called if the Device is garbage collected.
func (d *Device) Destroy() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		// Already destroyed, no-op.
		return nil
	}
	defer runtime.KeepAlive(d)
	err := d.handle.Close()
	d.handle = nil
	return err
}

func (d *Device) destroyOrLog() {
	if err := d.Destroy(); err != nil {
		klog.Errorf("Device.Destroy failed: %v", err)
	}
}

// getHandle returns the handle, or a DeviceUnavailable error if the Device was destroyed.
// It must be called with d.mu held (read or write).
func (d *Device) getHandle() (DeviceHandle, error) {
	if d == nil || d.handle == nil {
		return nil, Errorf(DeviceUnavailable, "Device is nil or has already been destroyed")
	}
	return d.handle, nil
}

// query runs fn on the handle, holding the read lock.
func query[T any](d *Device, what string, fn func(h DeviceHandle) (T, error)) (T, error) {
	var zero T
	if d == nil {
		return zero, Errorf(DeviceUnavailable, "Device is nil")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, err := d.getHandle()
	if err != nil {
		return zero, err
	}
	value, err := fn(h)
	if err != nil {
		return zero, errors.WithMessagef(asKind(RuntimeFailure, err), "%s: querying %s", d, what)
	}
	return value, nil
}

// Runtime returns the runtime that opened the device.
func (d *Device) Runtime() *Runtime {
	return d.runtime
}

// Index returns the index used to open the device, or -1 if it was opened by BDF.
func (d *Device) Index() int {
	return d.index
}

// Name returns the name of the device (the platform VBNV), e.g.: "xilinx_u250_gen3x16_xdma_shell_4_1".
func (d *Device) Name() string {
	return d.name
}

// BDF returns the PCIe address of the device, in the form "domain:bus:device.function".
func (d *Device) BDF() string {
	return d.bdf
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	if d.index >= 0 {
		return fmt.Sprintf("Device[%d, name=%q, bdf=%s]", d.index, d.name, d.bdf)
	}
	return fmt.Sprintf("Device[name=%q, bdf=%s]", d.name, d.bdf)
}

// InterfaceUUID returns the UUID of the shell (static region) of the device. Xclbins are built for a
// specific interface UUID.
func (d *Device) InterfaceUUID() (UUID, error) {
	return query(d, "interface UUID", DeviceHandle.InterfaceUUID)
}

// KDMA returns the number of kernel DMA engines of the device.
func (d *Device) KDMA() (uint32, error) {
	return query(d, "kdma", DeviceHandle.KDMA)
}

// MaxClockFrequencyMHz returns the maximum clock frequency of the device's kernels.
func (d *Device) MaxClockFrequencyMHz() (uint64, error) {
	return query(d, "max clock frequency", DeviceHandle.MaxClockFrequencyMHz)
}

// M2M returns whether the device supports memory-to-memory DMA.
func (d *Device) M2M() (bool, error) {
	return query(d, "m2m", DeviceHandle.M2M)
}

// NoDMA returns whether the device has no DMA engine (host memory is accessed by the kernels directly).
func (d *Device) NoDMA() (bool, error) {
	return query(d, "nodma", DeviceHandle.NoDMA)
}

// Offline returns whether the device is offline (e.g. being reset).
func (d *Device) Offline() (bool, error) {
	return query(d, "offline", DeviceHandle.Offline)
}

// XclbinUUID returns the UUID of the xclbin loaded in the device, or the zero UUID if none is loaded.
func (d *Device) XclbinUUID() (UUID, error) {
	return query(d, "xclbin UUID", DeviceHandle.XclbinUUID)
}

// IsLoaded returns whether the device has an xclbin loaded.
func (d *Device) IsLoaded() (bool, error) {
	u, err := d.XclbinUUID()
	if err != nil {
		return false, err
	}
	return !u.IsZero(), nil
}

// LoadXclbin programs the device with the xclbin, and returns the UUID of the loaded xclbin.
//
// It may take a while, since it programs the hardware. It fails with ProgrammingFailure if the runtime
// rejects the image, e.g. if it was built for a different shell. Kernels and IPs opened for a previously
// loaded xclbin with a different UUID are no longer usable.
func (d *Device) LoadXclbin(xclbin *Xclbin) (UUID, error) {
	if xclbin == nil || xclbin.handle == nil {
		return UUID{}, Errorf(MalformedInput, "LoadXclbin given a nil or destroyed Xclbin")
	}
	if d == nil {
		return UUID{}, Errorf(DeviceUnavailable, "LoadXclbin called on a nil Device")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.getHandle()
	if err != nil {
		return UUID{}, err
	}
	defer runtime.KeepAlive(xclbin)
	u, err := h.LoadXclbin(xclbin.handle)
	if err != nil {
		return UUID{}, errors.WithMessagef(asKind(ProgrammingFailure, err), "%s: loading %s", d, xclbin)
	}
	klog.V(1).Infof("%s: loaded xclbin %s", d, u)
	return u, nil
}

// checkLoaded returns a BitstreamMismatch error if the device is not loaded with xclbinID.
// It must be called with d.mu held.
func (d *Device) checkLoaded(h DeviceHandle, xclbinID UUID) error {
	loaded, err := h.XclbinUUID()
	if err != nil {
		return errors.WithMessagef(asKind(RuntimeFailure, err), "%s: querying xclbin UUID", d)
	}
	if loaded.IsZero() {
		return Errorf(BitstreamMismatch, "%s has no xclbin loaded, requested xclbin %s", d, xclbinID)
	}
	if loaded != xclbinID {
		return Errorf(BitstreamMismatch, "%s is loaded with xclbin %s, requested xclbin %s", d, loaded, xclbinID)
	}
	return nil
}

// Report returns the raw JSON report of the given kind.
func (d *Device) Report(kind ReportKind) (string, error) {
	return query(d, kind.String()+" report", func(h DeviceHandle) (string, error) { return h.Report(kind) })
}

// Electrical returns the power consumption of the device. Only power rails with a current or voltage
// sensor present are returned.
func (d *Device) Electrical() (Electrical, error) {
	report, err := d.Report(ReportElectrical)
	if err != nil {
		return Electrical{}, err
	}
	electrical, err := decodeReport[Electrical](ReportElectrical, report)
	if err != nil {
		return Electrical{}, err
	}
	present := electrical.PowerRails[:0]
	for _, rail := range electrical.PowerRails {
		if rail.Current.IsPresent || rail.Voltage.IsPresent {
			present = append(present, rail)
		}
	}
	electrical.PowerRails = present
	return electrical, nil
}

// Thermal returns the temperature sensors present in the device.
func (d *Device) Thermal() ([]Thermal, error) {
	report, err := d.Report(ReportThermal)
	if err != nil {
		return nil, err
	}
	thermals, err := decodeReport[thermalReport](ReportThermal, report)
	if err != nil {
		return nil, err
	}
	present := make([]Thermal, 0, len(thermals.Thermals))
	for _, t := range thermals.Thermals {
		if t.IsPresent {
			present = append(present, t)
		}
	}
	return present, nil
}

// Mechanical returns the fans of the device.
func (d *Device) Mechanical() (Mechanical, error) {
	report, err := d.Report(ReportMechanical)
	if err != nil {
		return Mechanical{}, err
	}
	return decodeReport[Mechanical](ReportMechanical, report)
}

// Memory returns the memory banks and DMA channels of the device.
func (d *Device) Memory() (Memory, error) {
	report, err := d.Report(ReportMemory)
	if err != nil {
		return Memory{}, err
	}
	return decodeReport[Memory](ReportMemory, report)
}

// Platform returns the platform information of the device.
func (d *Device) Platform() (Platform, error) {
	report, err := d.Report(ReportPlatform)
	if err != nil {
		return Platform{}, err
	}
	return decodePlatformReport(report)
}

// PCIeInfo returns the PCIe information of the device.
func (d *Device) PCIeInfo() (PCIeInfo, error) {
	report, err := d.Report(ReportPCIeInfo)
	if err != nil {
		return PCIeInfo{}, err
	}
	return decodeReport[PCIeInfo](ReportPCIeInfo, report)
}

// Host returns information about the XRT installed in the host.
func (d *Device) Host() (Host, error) {
	report, err := d.Report(ReportHost)
	if err != nil {
		return Host{}, err
	}
	return decodeReport[Host](ReportHost, report)
}

// DynamicRegions returns what is loaded in the programmable region of the device.
func (d *Device) DynamicRegions() (DynamicRegions, error) {
	report, err := d.Report(ReportDynamicRegions)
	if err != nil {
		return DynamicRegions{}, err
	}
	return decodeReport[DynamicRegions](ReportDynamicRegions, report)
}
