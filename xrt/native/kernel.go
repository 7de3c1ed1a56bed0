package native

// #include <stdlib.h>
// #include "shim.h"
import "C"
import (
	"github.com/gomlx/goxrt/xrt"
)

// kernelHandle owns an xrt::kernel. It implements xrt.KernelHandle.
type kernelHandle struct {
	cKernel *C.goxrt_kernel
}

func (k *kernelHandle) ReadRegister(offset uint32) (uint32, error) {
	if k.cKernel == nil {
		return 0, xrt.Errorf(xrt.RuntimeFailure, "native kernel already destroyed")
	}
	var value C.uint32_t
	if err := toError(C.goxrt_kernel_read_register(k.cKernel, C.uint32_t(offset), &value)); err != nil {
		return 0, err
	}
	return uint32(value), nil
}

func (k *kernelHandle) GroupID(argIndex int) (int, error) {
	if k.cKernel == nil {
		return 0, xrt.Errorf(xrt.RuntimeFailure, "native kernel already destroyed")
	}
	var groupID C.int
	if err := toError(C.goxrt_kernel_group_id(k.cKernel, C.int(argIndex), &groupID)); err != nil {
		return 0, err
	}
	return int(groupID), nil
}

func (k *kernelHandle) Close() error {
	if k.cKernel == nil {
		return nil
	}
	C.goxrt_kernel_destroy(k.cKernel)
	k.cKernel = nil
	return nil
}

// ipHandle owns an xrt::ip. It implements xrt.IPHandle.
type ipHandle struct {
	cIP *C.goxrt_ip
}

func (ip *ipHandle) ReadRegister(offset uint32) (uint32, error) {
	if ip.cIP == nil {
		return 0, xrt.Errorf(xrt.RuntimeFailure, "native IP already destroyed")
	}
	var value C.uint32_t
	if err := toError(C.goxrt_ip_read_register(ip.cIP, C.uint32_t(offset), &value)); err != nil {
		return 0, err
	}
	return uint32(value), nil
}

func (ip *ipHandle) WriteRegister(offset, value uint32) error {
	if ip.cIP == nil {
		return xrt.Errorf(xrt.RuntimeFailure, "native IP already destroyed")
	}
	return toError(C.goxrt_ip_write_register(ip.cIP, C.uint32_t(offset), C.uint32_t(value)))
}

func (ip *ipHandle) Close() error {
	if ip.cIP == nil {
		return nil
	}
	C.goxrt_ip_destroy(ip.cIP)
	ip.cIP = nil
	return nil
}
