package xrt

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CUAccessMode is how a kernel's compute units are shared among the contexts that open them.
// The values match xrt::kernel::cu_access_mode.
type CUAccessMode int

const (
	// Exclusive access: no other kernel object can open the same compute units.
	Exclusive CUAccessMode = iota

	// Shared access: other kernel objects, from this or other processes, can open the compute units in
	// shared mode as well.
	Shared
)

// String implements fmt.Stringer.
func (m CUAccessMode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	}
	return fmt.Sprintf("CUAccessMode(%d)", int(m))
}

// IsValid returns whether m is one of the defined modes.
func (m CUAccessMode) IsValid() bool {
	return m == Exclusive || m == Shared
}

// ParseCUAccessMode converts "exclusive" or "shared" (case-insensitive) to a CUAccessMode.
func ParseCUAccessMode(s string) (CUAccessMode, error) {
	switch strings.ToLower(s) {
	case "exclusive":
		return Exclusive, nil
	case "shared":
		return Shared, nil
	}
	return 0, Errorf(MalformedInput, "invalid compute unit access mode %q, valid values are \"exclusive\" and \"shared\"", s)
}

// Kernel is an open kernel of the xclbin loaded in a Device.
//
// It is only usable while the Device stays loaded with the xclbin it was opened for: afterward every
// call fails with BitstreamMismatch.
type Kernel struct {
	device   *Device
	handle   KernelHandle
	name     string
	xclbinID UUID
	mode     CUAccessMode
}

// NewKernel opens the kernel with the given name (it can include a compute unit selection as accepted
// by XRT, e.g.: "vadd:{vadd_1,vadd_2}"), from the xclbin xclbinID loaded in the device.
//
// It fails with MalformedInput for an empty name or invalid mode, with DeviceUnavailable if the
// device was destroyed, and with BitstreamMismatch if the device is not loaded with xclbinID.
func NewKernel(device *Device, xclbinID UUID, name string, mode CUAccessMode) (*Kernel, error) {
	if name == "" {
		return nil, Errorf(MalformedInput, "NewKernel requires a kernel name")
	}
	if !mode.IsValid() {
		return nil, Errorf(MalformedInput, "invalid compute unit access mode %s", mode)
	}
	if device == nil {
		return nil, Errorf(DeviceUnavailable, "NewKernel given a nil Device")
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	h, err := device.getHandle()
	if err != nil {
		return nil, err
	}
	if err = device.checkLoaded(h, xclbinID); err != nil {
		return nil, errors.WithMessagef(err, "opening kernel %q", name)
	}
	kh, err := h.OpenKernel(xclbinID, name, mode)
	if err != nil {
		return nil, errors.WithMessagef(asKind(RuntimeFailure, err), "%s: opening kernel %q", device, name)
	}
	k := &Kernel{device: device, handle: kh, name: name, xclbinID: xclbinID, mode: mode}
	runtime.SetFinalizer(k, func(k *Kernel) { k.destroyOrLog() })
	klog.V(1).Infof("%s: opened %s", device, k)
	return k, nil
}

// Destroy releases the kernel (and its compute units). It is a no-op if already destroyed.
// This is automatically called if the Kernel is garbage collected.
func (k *Kernel) Destroy() error {
	if k == nil || k.handle == nil {
		// Already destroyed, no-op.
		return nil
	}
	defer runtime.KeepAlive(k)
	err := k.handle.Close()
	k.handle = nil
	return err
}

func (k *Kernel) destroyOrLog() {
	if err := k.Destroy(); err != nil {
		klog.Errorf("Kernel.Destroy failed: %v", err)
	}
}

// Name returns the name used to open the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// XclbinUUID returns the UUID of the xclbin the kernel was opened for.
func (k *Kernel) XclbinUUID() UUID {
	return k.xclbinID
}

// Mode returns the compute unit access mode the kernel was opened with.
func (k *Kernel) Mode() CUAccessMode {
	return k.mode
}

// Device returns the device the kernel was opened on.
func (k *Kernel) Device() *Device {
	return k.device
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	return fmt.Sprintf("Kernel[%q, xclbin=%s, %s]", k.name, k.xclbinID, k.mode)
}

func (k *Kernel) getHandle() (KernelHandle, error) {
	if k == nil || k.handle == nil {
		return nil, Errorf(RuntimeFailure, "Kernel is nil or has already been destroyed")
	}
	return k.handle, nil
}

// ReadRegister reads the 32 bits register of the kernel's control interface at the given offset.
func (k *Kernel) ReadRegister(offset uint32) (value uint32, err error) {
	h, err := k.getHandle()
	if err != nil {
		return 0, err
	}
	err = k.device.whileLoaded(k.xclbinID, func() error {
		value, err = h.ReadRegister(offset)
		return err
	})
	if err != nil {
		return 0, errors.WithMessagef(asKind(RuntimeFailure, err), "%s: reading register 0x%x", k, offset)
	}
	return value, nil
}

// GroupID returns the memory group (bank index) the kernel argument with the given index is connected to.
// Buffers passed to the argument must be allocated in this group.
func (k *Kernel) GroupID(argIndex int) (groupID int, err error) {
	h, err := k.getHandle()
	if err != nil {
		return 0, err
	}
	if argIndex < 0 {
		return 0, Errorf(OutOfRange, "%s: negative argument index %d", k, argIndex)
	}
	err = k.device.whileLoaded(k.xclbinID, func() error {
		groupID, err = h.GroupID(argIndex)
		return err
	})
	if err != nil {
		return 0, errors.WithMessagef(asKind(RuntimeFailure, err), "%s: group id of argument %d", k, argIndex)
	}
	return groupID, nil
}

// whileLoaded runs fn holding the device read lock, after checking that the device is still loaded with
// xclbinID. This way the xclbin can't be replaced while fn runs.
func (d *Device) whileLoaded(xclbinID UUID, fn func() error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, err := d.getHandle()
	if err != nil {
		return err
	}
	if err = d.checkLoaded(h, xclbinID); err != nil {
		return err
	}
	return fn()
}
