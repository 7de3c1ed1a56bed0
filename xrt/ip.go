package xrt

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// IP is an open IP (a compute unit accessed directly through its registers, without the kernel
// execution model) of the xclbin loaded in a Device. IPs are always opened in exclusive mode.
//
// Like Kernel, it is only usable while the Device stays loaded with the xclbin it was opened for.
type IP struct {
	device   *Device
	handle   IPHandle
	name     string
	xclbinID UUID
}

// NewIP opens the IP with the given name (e.g.: "vadd:vadd_1") from the xclbin xclbinID loaded in the device.
//
// It fails with MalformedInput for an empty name, DeviceUnavailable if the device was destroyed and with
// BitstreamMismatch if the device is not loaded with xclbinID.
func NewIP(device *Device, xclbinID UUID, name string) (*IP, error) {
	if name == "" {
		return nil, Errorf(MalformedInput, "NewIP requires an IP name")
	}
	if device == nil {
		return nil, Errorf(DeviceUnavailable, "NewIP given a nil Device")
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	h, err := device.getHandle()
	if err != nil {
		return nil, err
	}
	if err = device.checkLoaded(h, xclbinID); err != nil {
		return nil, errors.WithMessagef(err, "opening IP %q", name)
	}
	ipHandle, err := h.OpenIP(xclbinID, name)
	if err != nil {
		return nil, errors.WithMessagef(asKind(RuntimeFailure, err), "%s: opening IP %q", device, name)
	}
	ip := &IP{device: device, handle: ipHandle, name: name, xclbinID: xclbinID}
	runtime.SetFinalizer(ip, func(ip *IP) { ip.destroyOrLog() })
	klog.V(1).Infof("%s: opened %s", device, ip)
	return ip, nil
}

// Destroy releases the IP. It is a no-op if already destroyed.
// This is automatically called if the IP is garbage collected.
func (ip *IP) Destroy() error {
	if ip == nil || ip.handle == nil {
		// Already destroyed, no-op.
		return nil
	}
	defer runtime.KeepAlive(ip)
	err := ip.handle.Close()
	ip.handle = nil
	return err
}

func (ip *IP) destroyOrLog() {
	if err := ip.Destroy(); err != nil {
		klog.Errorf("IP.Destroy failed: %v", err)
	}
}

// Name returns the name used to open the IP.
func (ip *IP) Name() string {
	return ip.name
}

// XclbinUUID returns the UUID of the xclbin the IP was opened for.
func (ip *IP) XclbinUUID() UUID {
	return ip.xclbinID
}

// Device returns the device the IP was opened on.
func (ip *IP) Device() *Device {
	return ip.device
}

// String implements fmt.Stringer.
func (ip *IP) String() string {
	return fmt.Sprintf("IP[%q, xclbin=%s]", ip.name, ip.xclbinID)
}

func (ip *IP) getHandle() (IPHandle, error) {
	if ip == nil || ip.handle == nil {
		return nil, Errorf(RuntimeFailure, "IP is nil or has already been destroyed")
	}
	return ip.handle, nil
}

// ReadRegister reads the 32 bits register of the IP at the given offset.
func (ip *IP) ReadRegister(offset uint32) (value uint32, err error) {
	h, err := ip.getHandle()
	if err != nil {
		return 0, err
	}
	err = ip.device.whileLoaded(ip.xclbinID, func() error {
		value, err = h.ReadRegister(offset)
		return err
	})
	if err != nil {
		return 0, errors.WithMessagef(asKind(RuntimeFailure, err), "%s: reading register 0x%x", ip, offset)
	}
	return value, nil
}

// WriteRegister writes the 32 bits register of the IP at the given offset.
func (ip *IP) WriteRegister(offset, value uint32) error {
	h, err := ip.getHandle()
	if err != nil {
		return err
	}
	err = ip.device.whileLoaded(ip.xclbinID, func() error {
		return h.WriteRegister(offset, value)
	})
	if err != nil {
		return errors.WithMessagef(asKind(RuntimeFailure, err), "%s: writing register 0x%x", ip, offset)
	}
	return nil
}
