package native

// #include <stdlib.h>
// #include "shim.h"
import "C"
import (
	"unsafe"

	"github.com/gomlx/goxrt/xrt"
)

// xclbinHandle owns an xrt::xclbin. It implements xrt.XclbinHandle.
type xclbinHandle struct {
	cXclbin *C.goxrt_xclbin
}

func newXclbinHandle(cXclbin *C.goxrt_xclbin) *xclbinHandle {
	return &xclbinHandle{cXclbin: cXclbin}
}

func (x *xclbinHandle) check() error {
	if x.cXclbin == nil {
		return xrt.Errorf(xrt.RuntimeFailure, "native xclbin already destroyed")
	}
	return nil
}

func (x *xclbinHandle) XSAName() (string, error) {
	if err := x.check(); err != nil {
		return "", err
	}
	var cStr *C.char
	if err := toError(C.goxrt_xclbin_xsa_name(x.cXclbin, &cStr)); err != nil {
		return "", err
	}
	return cStrFree(cStr), nil
}

func (x *xclbinHandle) UUID() (xrt.UUID, error) {
	if err := x.check(); err != nil {
		return xrt.UUID{}, err
	}
	var buf uuidBuffer
	if err := toError(C.goxrt_xclbin_uuid(x.cXclbin, buf.ptr())); err != nil {
		return xrt.UUID{}, err
	}
	return buf.UUID()
}

// Kernels copies the kernel descriptors to Go, and frees the C copy.
func (x *xclbinHandle) Kernels() ([]xrt.XclbinKernel, error) {
	if err := x.check(); err != nil {
		return nil, err
	}
	var cDescs *C.goxrt_kernel_desc
	var count C.size_t
	if err := toError(C.goxrt_xclbin_kernels(x.cXclbin, &cDescs, &count)); err != nil {
		return nil, err
	}
	defer C.goxrt_kernel_descs_free(cDescs, count)
	descs := cDataToSlice[C.goxrt_kernel_desc](unsafe.Pointer(cDescs), int(count))
	kernels := make([]xrt.XclbinKernel, len(descs))
	for ii, desc := range descs {
		kernels[ii] = xrt.XclbinKernel{
			Name: cGoString(desc.name),
			Args: convertArgs(desc.args, desc.num_args),
		}
	}
	return kernels, nil
}

// IPs copies the IP descriptors to Go, and frees the C copy.
func (x *xclbinHandle) IPs() ([]xrt.XclbinIP, error) {
	if err := x.check(); err != nil {
		return nil, err
	}
	var cDescs *C.goxrt_ip_desc
	var count C.size_t
	if err := toError(C.goxrt_xclbin_ips(x.cXclbin, &cDescs, &count)); err != nil {
		return nil, err
	}
	defer C.goxrt_ip_descs_free(cDescs, count)
	descs := cDataToSlice[C.goxrt_ip_desc](unsafe.Pointer(cDescs), int(count))
	ips := make([]xrt.XclbinIP, len(descs))
	for ii, desc := range descs {
		ips[ii] = xrt.XclbinIP{
			Name:        cGoString(desc.name),
			BaseAddress: uint64(desc.base_address),
			Args:        convertArgs(desc.args, desc.num_args),
		}
	}
	return ips, nil
}

func convertArgs(cArgs *C.goxrt_arg, count C.size_t) []xrt.XclbinArg {
	args := cDataToSlice[C.goxrt_arg](unsafe.Pointer(cArgs), int(count))
	converted := make([]xrt.XclbinArg, len(args))
	for ii, arg := range args {
		converted[ii] = xrt.XclbinArg{
			Name:     cGoString(arg.name),
			Index:    int(arg.index),
			Offset:   uint64(arg.offset),
			Size:     uint64(arg.size),
			HostType: cGoString(arg.host_type),
			Port:     cGoString(arg.port),
		}
		mems := cDataToSlice[C.goxrt_mem](unsafe.Pointer(arg.mems), int(arg.num_mems))
		if len(mems) > 0 {
			converted[ii].Mems = make([]xrt.XclbinMem, len(mems))
		}
		for jj, mem := range mems {
			converted[ii].Mems[jj] = xrt.XclbinMem{
				Tag:         cGoString(mem.tag),
				Index:       int32(mem.index),
				BaseAddress: uint64(mem.base_address),
				SizeKB:      uint64(mem.size_kb),
				Used:        bool(mem.used),
				Type:        xrt.MemType(mem.mem_type),
			}
		}
	}
	return converted
}

func (x *xclbinHandle) Close() error {
	if x.cXclbin == nil {
		return nil
	}
	C.goxrt_xclbin_destroy(x.cXclbin)
	x.cXclbin = nil
	return nil
}
