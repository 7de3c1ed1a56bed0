package native

// #include <stdlib.h>
// #include "shim.h"
import "C"
import (
	"github.com/gomlx/goxrt/xrt"
)

// deviceHandle owns an xrt::device. It implements xrt.DeviceHandle.
type deviceHandle struct {
	cDevice *C.goxrt_device
}

func newDeviceHandle(cDevice *C.goxrt_device) *deviceHandle {
	return &deviceHandle{cDevice: cDevice}
}

func (d *deviceHandle) check() error {
	if d.cDevice == nil {
		return xrt.Errorf(xrt.DeviceUnavailable, "native device already closed")
	}
	return nil
}

func (d *deviceHandle) infoString(param C.int) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}
	var cStr *C.char
	if err := toError(C.goxrt_device_info_string(d.cDevice, param, &cStr)); err != nil {
		return "", err
	}
	return cStrFree(cStr), nil
}

func (d *deviceHandle) infoUint64(param C.int) (uint64, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	var value C.uint64_t
	if err := toError(C.goxrt_device_info_uint64(d.cDevice, param, &value)); err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func (d *deviceHandle) infoBool(param C.int) (bool, error) {
	value, err := d.infoUint64(param)
	return value != 0, err
}

func (d *deviceHandle) Name() (string, error) {
	return d.infoString(C.int(C.GOXRT_INFO_NAME))
}

func (d *deviceHandle) BDF() (string, error) {
	return d.infoString(C.int(C.GOXRT_INFO_BDF))
}

func (d *deviceHandle) KDMA() (uint32, error) {
	value, err := d.infoUint64(C.int(C.GOXRT_INFO_KDMA))
	return uint32(value), err
}

func (d *deviceHandle) MaxClockFrequencyMHz() (uint64, error) {
	return d.infoUint64(C.int(C.GOXRT_INFO_MAX_CLOCK_FREQUENCY_MHZ))
}

func (d *deviceHandle) M2M() (bool, error) {
	return d.infoBool(C.int(C.GOXRT_INFO_M2M))
}

func (d *deviceHandle) NoDMA() (bool, error) {
	return d.infoBool(C.int(C.GOXRT_INFO_NODMA))
}

func (d *deviceHandle) Offline() (bool, error) {
	return d.infoBool(C.int(C.GOXRT_INFO_OFFLINE))
}

func (d *deviceHandle) Report(kind xrt.ReportKind) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}
	if kind < xrt.ReportElectrical || kind > xrt.ReportDynamicRegions {
		return "", xrt.Errorf(xrt.OutOfRange, "invalid report kind %s", kind)
	}
	var cStr *C.char
	if err := toError(C.goxrt_device_report(d.cDevice, C.int(kind), &cStr)); err != nil {
		return "", err
	}
	return cStrFree(cStr), nil
}

func (d *deviceHandle) InterfaceUUID() (xrt.UUID, error) {
	if err := d.check(); err != nil {
		return xrt.UUID{}, err
	}
	var buf uuidBuffer
	if err := toError(C.goxrt_device_interface_uuid(d.cDevice, buf.ptr())); err != nil {
		return xrt.UUID{}, err
	}
	return buf.UUID()
}

func (d *deviceHandle) XclbinUUID() (xrt.UUID, error) {
	if err := d.check(); err != nil {
		return xrt.UUID{}, err
	}
	var buf uuidBuffer
	if err := toError(C.goxrt_device_xclbin_uuid(d.cDevice, buf.ptr())); err != nil {
		return xrt.UUID{}, err
	}
	return buf.UUID()
}

func (d *deviceHandle) LoadXclbin(xclbin xrt.XclbinHandle) (xrt.UUID, error) {
	if err := d.check(); err != nil {
		return xrt.UUID{}, err
	}
	x, ok := xclbin.(*xclbinHandle)
	if !ok || x.cXclbin == nil {
		return xrt.UUID{}, xrt.Errorf(xrt.ProgrammingFailure, "xclbin of type %T was not created by the native backend", xclbin)
	}
	var buf uuidBuffer
	if err := toError(C.goxrt_device_load_xclbin(d.cDevice, x.cXclbin, buf.ptr())); err != nil {
		return xrt.UUID{}, err
	}
	return buf.UUID()
}

func (d *deviceHandle) OpenKernel(xclbinID xrt.UUID, name string, mode xrt.CUAccessMode) (xrt.KernelHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	cID := cUUID(xclbinID)
	defer cFree(cID)
	cName := C.CString(name)
	defer cFree(cName)
	var cKernel *C.goxrt_kernel
	if err := toError(C.goxrt_kernel_new(d.cDevice, cID, cName, C.int(mode), &cKernel)); err != nil {
		return nil, err
	}
	return &kernelHandle{cKernel: cKernel}, nil
}

func (d *deviceHandle) OpenIP(xclbinID xrt.UUID, name string) (xrt.IPHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	cID := cUUID(xclbinID)
	defer cFree(cID)
	cName := C.CString(name)
	defer cFree(cName)
	var cIP *C.goxrt_ip
	if err := toError(C.goxrt_ip_new(d.cDevice, cID, cName, &cIP)); err != nil {
		return nil, err
	}
	return &ipHandle{cIP: cIP}, nil
}

func (d *deviceHandle) Close() error {
	if d.cDevice == nil {
		return nil
	}
	C.goxrt_device_close(d.cDevice)
	d.cDevice = nil
	return nil
}
