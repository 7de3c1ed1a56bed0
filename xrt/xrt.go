// Package xrt implements a Go wrapper for the Xilinx Runtime (XRT) object model: devices, xclbin
// (bitstream container) files, kernels and IPs.
//
// The actual work (device management, programming the FPGA, DMA, scheduling) is done by the runtime
// backend. Backends register themselves with RegisterBackend from their package init(), so to use
// real hardware one imports the cgo backend:
//
//	import _ "github.com/gomlx/goxrt/xrt/native"
//
// And for hosts without cards (or for tests) the emulated backend:
//
//	import _ "github.com/gomlx/goxrt/xrt/sim"
//
// A typical session:
//
//	device, err := xrt.OpenDevice(0)
//	xclbin, err := xrt.NewXclbinFromFile("vadd.xclbin")
//	uuid, err := device.LoadXclbin(xclbin)
//	kernel, err := xrt.NewKernel(device, uuid, "vadd", xrt.Exclusive)
//
// All objects owning a runtime handle have a Destroy method. It is also called by the garbage collector
// if the object is no longer referenced, but it is better to call it explicitly.
package xrt
