// Package native links the Xilinx XRT runtime (libxrt_coreutil) and registers it as the "native" backend
// of the xrt package.
//
// To use it simply import with:
//
//	import _ "github.com/gomlx/goxrt/xrt/native"
//
// And calls to xrt.GetRuntime("native") (or xrt.DefaultRuntime) will use it.
//
// It expects XRT installed in /opt/xilinx/xrt (the default location of the XRT packages). For other
// locations set CGO_CXXFLAGS and CGO_LDFLAGS accordingly, e.g.:
//
//	export CGO_CXXFLAGS="-I${XILINX_XRT}/include" CGO_LDFLAGS="-L${XILINX_XRT}/lib"
package native

// #cgo CXXFLAGS: -std=c++17 -I/opt/xilinx/xrt/include
// #cgo LDFLAGS: -L/opt/xilinx/xrt/lib -lxrt_coreutil -lstdc++
// #include <stdlib.h>
// #include "shim.h"
import "C"
import (
	"unsafe"

	"github.com/gomlx/goxrt/xrt"
	"k8s.io/klog/v2"
)

// BackendName is the name the XRT backend is registered with.
const BackendName = "native"

func init() {
	if err := xrt.RegisterBackend(BackendName, &Backend{}); err != nil {
		klog.Fatalf("Failed to register the native XRT backend (github.com/gomlx/goxrt/xrt/native): %+v", err)
	}
}

// Backend implements xrt.Backend using the XRT C++ library.
type Backend struct{}

// Compile-time check that Backend implements xrt.Backend.
var _ xrt.Backend = (*Backend)(nil)

// Name implements xrt.Backend.
func (*Backend) Name() string {
	return BackendName
}

// OpenDevice implements xrt.Backend.
func (*Backend) OpenDevice(index int) (xrt.DeviceHandle, error) {
	var cDevice *C.goxrt_device
	if err := toError(C.goxrt_device_open(C.uint(index), &cDevice)); err != nil {
		return nil, err
	}
	return newDeviceHandle(cDevice), nil
}

// OpenDeviceByBDF implements xrt.Backend.
func (*Backend) OpenDeviceByBDF(bdf string) (xrt.DeviceHandle, error) {
	cBDF := C.CString(bdf)
	defer cFree(cBDF)
	var cDevice *C.goxrt_device
	if err := toError(C.goxrt_device_open_bdf(cBDF, &cDevice)); err != nil {
		return nil, err
	}
	return newDeviceHandle(cDevice), nil
}

// NewXclbin implements xrt.Backend. The data is copied by the runtime.
func (*Backend) NewXclbin(data []byte) (xrt.XclbinHandle, error) {
	if len(data) == 0 {
		return nil, xrt.Errorf(xrt.MalformedInput, "empty xclbin data")
	}
	var cXclbin *C.goxrt_xclbin
	err := toError(C.goxrt_xclbin_new(unsafe.Pointer(&data[0]), C.size_t(len(data)), &cXclbin))
	if err != nil {
		return nil, err
	}
	return newXclbinHandle(cXclbin), nil
}

// SetIni implements xrt.Backend, using xrt::ini::set.
func (*Backend) SetIni(key, value string) error {
	cKey, cValue := C.CString(key), C.CString(value)
	defer cFree(cKey)
	defer cFree(cValue)
	return toError(C.goxrt_set_ini(cKey, cValue))
}
