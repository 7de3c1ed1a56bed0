package xrt

// This file defines the interface between the binding and the runtime backends.
//
// Backends own the native resources: every handle returned must be released with its Close method,
// which the wrappers in this package call exactly once. Values returned (strings, UUIDs, descriptors)
// must be owned by Go, that is, copied out of any native memory.

// Backend is the runtime implementation: see packages xrt/native and xrt/sim.
type Backend interface {
	// Name of the backend, e.g.: "native", "sim".
	Name() string

	// OpenDevice opens the device with the given index.
	OpenDevice(index int) (DeviceHandle, error)

	// OpenDeviceByBDF opens the device with the given PCIe bus:device.function address.
	OpenDeviceByBDF(bdf string) (DeviceHandle, error)

	// NewXclbin parses the raw contents of an xclbin file.
	// The backend must not keep a reference to data after returning.
	NewXclbin(data []byte) (XclbinHandle, error)

	// SetIni sets a runtime (xrt.ini) configuration key, for the whole process.
	SetIni(key, value string) error
}

// DeviceHandle is an open device owned by a Device.
type DeviceHandle interface {
	Name() (string, error)
	BDF() (string, error)
	InterfaceUUID() (UUID, error)
	KDMA() (uint32, error)
	MaxClockFrequencyMHz() (uint64, error)
	M2M() (bool, error)
	NoDMA() (bool, error)
	Offline() (bool, error)

	// Report returns the JSON report of the given kind.
	Report(kind ReportKind) (string, error)

	// XclbinUUID returns the UUID of the loaded xclbin, or the zero UUID if none is loaded.
	XclbinUUID() (UUID, error)

	// LoadXclbin programs the device and returns the UUID now active.
	LoadXclbin(xclbin XclbinHandle) (UUID, error)

	OpenKernel(xclbinID UUID, name string, mode CUAccessMode) (KernelHandle, error)
	OpenIP(xclbinID UUID, name string) (IPHandle, error)

	Close() error
}

// XclbinHandle is a parsed xclbin owned by an Xclbin.
type XclbinHandle interface {
	XSAName() (string, error)
	UUID() (UUID, error)
	Kernels() ([]XclbinKernel, error)
	IPs() ([]XclbinIP, error)
	Close() error
}

// KernelHandle is an open kernel owned by a Kernel.
type KernelHandle interface {
	ReadRegister(offset uint32) (uint32, error)
	GroupID(argIndex int) (int, error)
	Close() error
}

// IPHandle is an open IP owned by an IP.
type IPHandle interface {
	ReadRegister(offset uint32) (uint32, error)
	WriteRegister(offset, value uint32) error
	Close() error
}
