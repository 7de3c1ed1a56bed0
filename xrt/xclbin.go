package xrt

import (
	"fmt"
	"os"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MemType is the type of memory an xclbin argument is connected to.
// The values match xrt::xclbin::mem::memory_type.
type MemType int

const (
	MemDDR3 MemType = iota
	MemDDR4
	MemDRAM
	MemStreaming
	MemPreallocatedGlobal
	MemARE
	MemHBM
	MemBRAM
	MemURAM
	MemStreamingConnection
	MemHost
)

var memTypeNames = []string{
	MemDDR3:                "ddr3",
	MemDDR4:                "ddr4",
	MemDRAM:                "dram",
	MemStreaming:           "streaming",
	MemPreallocatedGlobal:  "preallocated_global",
	MemARE:                 "are",
	MemHBM:                 "hbm",
	MemBRAM:                "bram",
	MemURAM:                "uram",
	MemStreamingConnection: "streaming_connection",
	MemHost:                "host",
}

// String implements fmt.Stringer.
func (t MemType) String() string {
	if t < 0 || int(t) >= len(memTypeNames) {
		return fmt.Sprintf("MemType(%d)", int(t))
	}
	return memTypeNames[t]
}

// ParseMemType converts a name as returned by MemType.String back to a MemType.
func ParseMemType(name string) (MemType, error) {
	idx := slices.Index(memTypeNames, name)
	if idx < 0 {
		return 0, Errorf(NotFound, "unknown memory type %q", name)
	}
	return MemType(idx), nil
}

// XclbinMem describes a memory (bank) an argument is connected to.
type XclbinMem struct {
	Tag         string // E.g.: "DDR[0]", "HBM[3]".
	Index       int32
	BaseAddress uint64
	SizeKB      uint64
	Used        bool
	Type        MemType
}

// XclbinArg describes one argument of a kernel or IP.
type XclbinArg struct {
	Name     string
	Index    int
	Offset   uint64 // Register offset of the argument in the control interface.
	Size     uint64
	HostType string // E.g.: "int*", "unsigned int".
	Port     string
	Mems     []XclbinMem
}

// XclbinKernel describes a kernel of an xclbin.
type XclbinKernel struct {
	Name string
	Args []XclbinArg
}

// Arg returns the argument with the given index, or an OutOfRange error.
func (k XclbinKernel) Arg(index int) (XclbinArg, error) {
	return argAt("kernel", k.Name, k.Args, index)
}

// XclbinIP describes an IP (a compute unit) of an xclbin.
type XclbinIP struct {
	Name        string
	BaseAddress uint64
	Args        []XclbinArg
}

// Arg returns the argument with the given index, or an OutOfRange error.
func (ip XclbinIP) Arg(index int) (XclbinArg, error) {
	return argAt("IP", ip.Name, ip.Args, index)
}

func argAt(what, name string, args []XclbinArg, index int) (XclbinArg, error) {
	if index < 0 || index >= len(args) {
		return XclbinArg{}, Errorf(OutOfRange, "argument index %d out of range for %s %q with %d arguments",
			index, what, name, len(args))
	}
	return cloneArg(args[index]), nil
}

func cloneArg(arg XclbinArg) XclbinArg {
	arg.Mems = slices.Clone(arg.Mems)
	return arg
}

func cloneArgs(args []XclbinArg) []XclbinArg {
	if args == nil {
		return nil
	}
	cloned := make([]XclbinArg, len(args))
	for ii, arg := range args {
		cloned[ii] = cloneArg(arg)
	}
	return cloned
}

func cloneKernels(kernels []XclbinKernel) []XclbinKernel {
	cloned := make([]XclbinKernel, len(kernels))
	for ii, k := range kernels {
		cloned[ii] = XclbinKernel{Name: k.Name, Args: cloneArgs(k.Args)}
	}
	return cloned
}

func cloneIPs(ips []XclbinIP) []XclbinIP {
	cloned := make([]XclbinIP, len(ips))
	for ii, ip := range ips {
		cloned[ii] = XclbinIP{Name: ip.Name, BaseAddress: ip.BaseAddress, Args: cloneArgs(ip.Args)}
	}
	return cloned
}

// Xclbin is a parsed xclbin (the container of a compiled FPGA image), ready to be loaded into a Device.
//
// Its metadata is copied from the runtime when it is created, so the accessors don't cross into the
// runtime, and are safe to call concurrently.
type Xclbin struct {
	runtime *Runtime
	handle  XclbinHandle

	xsaName string
	uuid    UUID
	kernels []XclbinKernel
	ips     []XclbinIP
}

// NewXclbin parses the contents of an xclbin file.
//
// It fails with MalformedInput if data is empty or if the runtime can't parse it.
func (r *Runtime) NewXclbin(data []byte) (*Xclbin, error) {
	if len(data) == 0 {
		return nil, Errorf(MalformedInput, "empty xclbin data")
	}
	handle, err := r.backend.NewXclbin(data)
	if err != nil {
		return nil, errors.WithMessage(asKind(MalformedInput, err), "parsing xclbin")
	}
	x := &Xclbin{runtime: r, handle: handle}
	if err = x.readMetadata(); err != nil {
		// No partial Xclbin is returned.
		if closeErr := handle.Close(); closeErr != nil {
			klog.Errorf("Failed to release partially read xclbin: %v", closeErr)
		}
		return nil, errors.WithMessage(err, "reading xclbin metadata")
	}
	runtime.SetFinalizer(x, func(x *Xclbin) { x.destroyOrLog() })
	klog.V(1).Infof("%s: parsed %s", r, x)
	return x, nil
}

// NewXclbinFromFile reads and parses the xclbin file.
func (r *Runtime) NewXclbinFromFile(filePath string) (*Xclbin, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading xclbin file %q", filePath)
	}
	x, err := r.NewXclbin(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "xclbin file %q", filePath)
	}
	return x, nil
}

// NewXclbin parses the contents of an xclbin file using the DefaultRuntime.
func NewXclbin(data []byte) (*Xclbin, error) {
	r, err := DefaultRuntime()
	if err != nil {
		return nil, err
	}
	return r.NewXclbin(data)
}

// NewXclbinFromFile reads and parses the xclbin file using the DefaultRuntime.
func NewXclbinFromFile(filePath string) (*Xclbin, error) {
	r, err := DefaultRuntime()
	if err != nil {
		return nil, err
	}
	return r.NewXclbinFromFile(filePath)
}

func (x *Xclbin) readMetadata() error {
	var err error
	if x.xsaName, err = x.handle.XSAName(); err != nil {
		return asKind(RuntimeFailure, err)
	}
	if x.uuid, err = x.handle.UUID(); err != nil {
		return asKind(RuntimeFailure, err)
	}
	if x.uuid.IsZero() {
		return Errorf(MalformedInput, "xclbin has a nil UUID")
	}
	kernels, err := x.handle.Kernels()
	if err != nil {
		return asKind(RuntimeFailure, err)
	}
	x.kernels = cloneKernels(kernels)
	ips, err := x.handle.IPs()
	if err != nil {
		return asKind(RuntimeFailure, err)
	}
	x.ips = cloneIPs(ips)
	return nil
}

// Destroy releases the runtime resources of the xclbin. It is a no-op if already destroyed.
// This is automatically called if the Xclbin is garbage collected.
//
// Devices loaded with the xclbin are not affected.
func (x *Xclbin) Destroy() error {
	if x == nil || x.handle == nil {
		// Already destroyed, no-op.
		return nil
	}
	defer runtime.KeepAlive(x)
	err := x.handle.Close()
	x.handle = nil
	return err
}

func (x *Xclbin) destroyOrLog() {
	if err := x.Destroy(); err != nil {
		klog.Errorf("Xclbin.Destroy failed: %v", err)
	}
}

// XSAName returns the name of the platform (shell) the xclbin was built for.
func (x *Xclbin) XSAName() string {
	return x.xsaName
}

// UUID returns the identifier of the xclbin.
func (x *Xclbin) UUID() UUID {
	return x.uuid
}

// Kernels returns the descriptors of the kernels, in the order given by the xclbin.
// The returned slice is a copy and can be modified.
func (x *Xclbin) Kernels() []XclbinKernel {
	return cloneKernels(x.kernels)
}

// Kernel returns the kernel descriptor with the given name, or a NotFound error.
func (x *Xclbin) Kernel(name string) (XclbinKernel, error) {
	for _, k := range x.kernels {
		if k.Name == name {
			return XclbinKernel{Name: k.Name, Args: cloneArgs(k.Args)}, nil
		}
	}
	return XclbinKernel{}, Errorf(NotFound, "kernel %q not found in xclbin %s", name, x.uuid)
}

// IPs returns the descriptors of the IPs, in the order given by the xclbin.
// The returned slice is a copy and can be modified.
func (x *Xclbin) IPs() []XclbinIP {
	return cloneIPs(x.ips)
}

// IP returns the IP descriptor with the given name, or a NotFound error.
func (x *Xclbin) IP(name string) (XclbinIP, error) {
	for _, ip := range x.ips {
		if ip.Name == name {
			return XclbinIP{Name: ip.Name, BaseAddress: ip.BaseAddress, Args: cloneArgs(ip.Args)}, nil
		}
	}
	return XclbinIP{}, Errorf(NotFound, "IP %q not found in xclbin %s", name, x.uuid)
}

// String implements fmt.Stringer.
func (x *Xclbin) String() string {
	return fmt.Sprintf("Xclbin[xsa=%q, uuid=%s, %d kernels, %d IPs]", x.xsaName, x.uuid, len(x.kernels), len(x.ips))
}
