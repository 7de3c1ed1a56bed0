package sim

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/goxrt/xrt"
)

// RegisterWindowSize is the size in bytes of the register address space of each compute unit.
const RegisterWindowSize = 0x10000

// computeUnit is an instance of a kernel (or a standalone IP) in the loaded xclbin.
type computeUnit struct {
	name             string // "<kernel>:<instance>", or just the IP name for standalone IPs.
	kernel, instance string
	baseAddress      uint64

	exclusive bool // Opened in exclusive mode.
	shared    int  // Number of contexts opened in shared mode.

	registers map[uint32]uint32
}

// newComputeUnits creates one compute unit per IP of the xclbin, plus one for each kernel that has no
// IP instance listed.
func newComputeUnits(kernels []xrt.XclbinKernel, ips []xrt.XclbinIP) []*computeUnit {
	cus := make([]*computeUnit, 0, len(ips)+len(kernels))
	hasInstance := make(map[string]bool)
	for _, ip := range ips {
		kernel, instance, _ := strings.Cut(ip.Name, ":")
		cus = append(cus, &computeUnit{
			name: ip.Name, kernel: kernel, instance: instance, baseAddress: ip.BaseAddress,
			registers: make(map[uint32]uint32),
		})
		hasInstance[kernel] = true
	}
	for _, k := range kernels {
		if hasInstance[k.Name] {
			continue
		}
		instance := k.Name + "_1"
		cus = append(cus, &computeUnit{
			name: k.Name + ":" + instance, kernel: k.Name, instance: instance,
			registers: make(map[uint32]uint32),
		})
	}
	return cus
}

// canAcquire returns an error if opening the compute unit in the given mode conflicts with the contexts
// already open.
func (cu *computeUnit) canAcquire(mode xrt.CUAccessMode) error {
	if cu.exclusive {
		return xrt.Errorf(xrt.RuntimeFailure, "compute unit %q is already opened in exclusive mode", cu.name)
	}
	if mode == xrt.Exclusive && cu.shared > 0 {
		return xrt.Errorf(xrt.RuntimeFailure, "compute unit %q is opened in shared mode by %d contexts, it can't be opened in exclusive mode",
			cu.name, cu.shared)
	}
	return nil
}

func (cu *computeUnit) acquire(mode xrt.CUAccessMode) {
	if mode == xrt.Exclusive {
		cu.exclusive = true
	} else {
		cu.shared++
	}
}

func (cu *computeUnit) release(mode xrt.CUAccessMode) {
	if mode == xrt.Exclusive {
		cu.exclusive = false
	} else if cu.shared > 0 {
		cu.shared--
	}
}

func checkRegisterOffset(offset uint32) error {
	if offset%4 != 0 {
		return xrt.Errorf(xrt.MalformedInput, "register offset 0x%x is not 4 bytes aligned", offset)
	}
	if offset >= RegisterWindowSize {
		return xrt.Errorf(xrt.OutOfRange, "register offset 0x%x is past the register window of 0x%x bytes",
			offset, RegisterWindowSize)
	}
	return nil
}

// parseKernelName splits a kernel name with an optional compute unit selection, e.g.: "vadd",
// "vadd:vadd_1" or "vadd:{vadd_1,vadd_2}".
func parseKernelName(name string) (kernel string, instances []string, err error) {
	kernel, selection, found := strings.Cut(name, ":")
	if !found {
		return kernel, nil, nil
	}
	selection = strings.TrimSpace(selection)
	if strings.HasPrefix(selection, "{") {
		if !strings.HasSuffix(selection, "}") {
			return "", nil, xrt.Errorf(xrt.MalformedInput, "invalid compute unit selection in kernel name %q", name)
		}
		selection = selection[1 : len(selection)-1]
	}
	for _, instance := range strings.Split(selection, ",") {
		instance = strings.TrimSpace(instance)
		if instance == "" {
			return "", nil, xrt.Errorf(xrt.MalformedInput, "empty compute unit in kernel name %q", name)
		}
		instances = append(instances, instance)
	}
	return kernel, instances, nil
}

func (c *card) findKernel(name string) (xrt.XclbinKernel, bool) {
	for _, k := range c.kernels {
		if k.Name == name {
			return k, true
		}
	}
	return xrt.XclbinKernel{}, false
}

// openKernel must be called with the backend mutex held.
func (c *card) openKernel(b *Backend, name string, mode xrt.CUAccessMode) (*kernelHandle, error) {
	kernelName, instances, err := parseKernelName(name)
	if err != nil {
		return nil, err
	}
	kernel, found := c.findKernel(kernelName)
	if !found {
		return nil, xrt.Errorf(xrt.NotFound, "kernel %q not found in xclbin %s", kernelName, c.xclbinUUID)
	}
	var cus []*computeUnit
	for _, cu := range c.cus {
		if cu.kernel != kernelName {
			continue
		}
		if instances != nil && !slices.Contains(instances, cu.instance) {
			continue
		}
		cus = append(cus, cu)
	}
	if len(cus) == 0 || (instances != nil && len(cus) != len(instances)) {
		return nil, xrt.Errorf(xrt.NotFound, "compute units %q of kernel %q not found in xclbin %s",
			instances, kernelName, c.xclbinUUID)
	}
	for _, cu := range cus {
		if err = cu.canAcquire(mode); err != nil {
			return nil, err
		}
	}
	for _, cu := range cus {
		cu.acquire(mode)
	}
	return &kernelHandle{backend: b, card: c, generation: c.generation, kernel: kernel, cus: cus, mode: mode}, nil
}

// openIP must be called with the backend mutex held.
func (c *card) openIP(b *Backend, name string) (*ipHandle, error) {
	for _, cu := range c.cus {
		if cu.name != name {
			continue
		}
		if err := cu.canAcquire(xrt.Exclusive); err != nil {
			return nil, err
		}
		cu.acquire(xrt.Exclusive)
		return &ipHandle{backend: b, card: c, generation: c.generation, cu: cu}, nil
	}
	return nil, xrt.Errorf(xrt.NotFound, "IP %q not found in xclbin %s", name, c.xclbinUUID)
}

// kernelHandle implements xrt.KernelHandle.
type kernelHandle struct {
	backend    *Backend
	card       *card
	generation int
	kernel     xrt.XclbinKernel
	cus        []*computeUnit
	mode       xrt.CUAccessMode
	closed     bool
}

// lock locks the backend and checks the kernel is open and its xclbin still loaded.
func (k *kernelHandle) lock() (unlock func(), err error) {
	k.backend.mu.Lock()
	if err = checkStale(k.closed, k.generation, k.card, k.String()); err != nil {
		k.backend.mu.Unlock()
		return nil, err
	}
	return k.backend.mu.Unlock, nil
}

func checkStale(closed bool, generation int, c *card, what string) error {
	if closed {
		return xrt.Errorf(xrt.RuntimeFailure, "%s already closed", what)
	}
	if generation != c.generation {
		return xrt.Errorf(xrt.BitstreamMismatch, "%s was opened for an xclbin no longer loaded in sim device %q",
			what, c.config.Name)
	}
	return nil
}

// ReadRegister reads the register of the first compute unit of the kernel.
func (k *kernelHandle) ReadRegister(offset uint32) (uint32, error) {
	if err := checkRegisterOffset(offset); err != nil {
		return 0, err
	}
	unlock, err := k.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return k.cus[0].registers[offset], nil
}

// GroupID returns the index of the first memory the argument is connected to.
func (k *kernelHandle) GroupID(argIndex int) (int, error) {
	unlock, err := k.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	arg, err := k.kernel.Arg(argIndex)
	if err != nil {
		return 0, err
	}
	if len(arg.Mems) == 0 {
		return 0, xrt.Errorf(xrt.NotFound, "argument %d (%q) of kernel %q is not connected to any memory",
			argIndex, arg.Name, k.kernel.Name)
	}
	return int(arg.Mems[0].Index), nil
}

func (k *kernelHandle) Close() error {
	k.backend.mu.Lock()
	defer k.backend.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	if k.generation == k.card.generation {
		for _, cu := range k.cus {
			cu.release(k.mode)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (k *kernelHandle) String() string {
	return fmt.Sprintf("sim kernel %q", k.kernel.Name)
}

// ipHandle implements xrt.IPHandle.
type ipHandle struct {
	backend    *Backend
	card       *card
	generation int
	cu         *computeUnit
	closed     bool
}

func (ip *ipHandle) lock() (unlock func(), err error) {
	ip.backend.mu.Lock()
	if err = checkStale(ip.closed, ip.generation, ip.card, ip.String()); err != nil {
		ip.backend.mu.Unlock()
		return nil, err
	}
	return ip.backend.mu.Unlock, nil
}

func (ip *ipHandle) ReadRegister(offset uint32) (uint32, error) {
	if err := checkRegisterOffset(offset); err != nil {
		return 0, err
	}
	unlock, err := ip.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return ip.cu.registers[offset], nil
}

func (ip *ipHandle) WriteRegister(offset, value uint32) error {
	if err := checkRegisterOffset(offset); err != nil {
		return err
	}
	unlock, err := ip.lock()
	if err != nil {
		return err
	}
	defer unlock()
	ip.cu.registers[offset] = value
	return nil
}

func (ip *ipHandle) Close() error {
	ip.backend.mu.Lock()
	defer ip.backend.mu.Unlock()
	if ip.closed {
		return nil
	}
	ip.closed = true
	if ip.generation == ip.card.generation {
		ip.cu.release(xrt.Exclusive)
	}
	return nil
}

// String implements fmt.Stringer.
func (ip *ipHandle) String() string {
	return fmt.Sprintf("sim IP %q", ip.cu.name)
}
