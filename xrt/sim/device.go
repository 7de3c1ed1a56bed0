package sim

import (
	"fmt"

	"github.com/gomlx/goxrt/xrt"
	jsoniter "github.com/json-iterator/go"
	"k8s.io/klog/v2"
)

// card is the state of one emulated FPGA card, shared by all device handles opened on it.
// It is protected by the Backend mutex.
type card struct {
	config        DeviceConfig
	interfaceUUID xrt.UUID

	// Loaded xclbin: zero UUID if none.
	xclbinUUID xrt.UUID
	kernels    []xrt.XclbinKernel
	cus        []*computeUnit

	// generation is incremented every time a different xclbin is loaded. Kernels and IPs opened for an
	// older generation are stale.
	generation int
}

// load programs the card with the xclbin. Loading the xclbin already loaded is a no-op.
func (c *card) load(x *xclbinHandle) error {
	if c.config.Offline {
		return xrt.Errorf(xrt.ProgrammingFailure, "sim device %q (%s) is offline", c.config.Name, c.config.BDF)
	}
	if !x.interfaceUUID.IsZero() && x.interfaceUUID != c.interfaceUUID {
		return xrt.Errorf(xrt.ProgrammingFailure, "xclbin %s was built for interface %s, sim device %q has interface %s",
			x.uuid, x.interfaceUUID, c.config.Name, c.interfaceUUID)
	}
	if c.xclbinUUID == x.uuid {
		return nil
	}
	c.xclbinUUID = x.uuid
	c.kernels = x.kernels
	c.cus = newComputeUnits(x.kernels, x.ips)
	c.generation++
	klog.V(1).Infof("sim device %q: loaded xclbin %s (generation %d, %d compute units)",
		c.config.Name, x.uuid, c.generation, len(c.cus))
	return nil
}

// checkLoaded returns a BitstreamMismatch error if the card is not loaded with xclbinID.
func (c *card) checkLoaded(xclbinID xrt.UUID) error {
	if c.xclbinUUID.IsZero() {
		return xrt.Errorf(xrt.BitstreamMismatch, "sim device %q has no xclbin loaded", c.config.Name)
	}
	if c.xclbinUUID != xclbinID {
		return xrt.Errorf(xrt.BitstreamMismatch, "sim device %q is loaded with xclbin %s, not %s",
			c.config.Name, c.xclbinUUID, xclbinID)
	}
	return nil
}

// deviceHandle is one open device. It implements xrt.DeviceHandle.
type deviceHandle struct {
	backend *Backend
	card    *card
	closed  bool
}

func (b *Backend) newDeviceHandle(c *card) *deviceHandle {
	return &deviceHandle{backend: b, card: c}
}

// lock locks the backend and checks the handle is still open. It returns the function to unlock.
func (h *deviceHandle) lock() (unlock func(), err error) {
	h.backend.mu.Lock()
	if h.closed {
		h.backend.mu.Unlock()
		return nil, xrt.Errorf(xrt.DeviceUnavailable, "sim device %q already closed", h.card.config.Name)
	}
	return h.backend.mu.Unlock, nil
}

// configValue returns a value from the card configuration, which never changes.
func configValue[T any](h *deviceHandle, fn func(cfg *DeviceConfig) T) (T, error) {
	unlock, err := h.lock()
	if err != nil {
		var zero T
		return zero, err
	}
	defer unlock()
	return fn(&h.card.config), nil
}

func (h *deviceHandle) Name() (string, error) {
	return configValue(h, func(cfg *DeviceConfig) string { return cfg.Name })
}

func (h *deviceHandle) BDF() (string, error) {
	return configValue(h, func(cfg *DeviceConfig) string { return cfg.BDF })
}

func (h *deviceHandle) KDMA() (uint32, error) {
	return configValue(h, func(cfg *DeviceConfig) uint32 { return cfg.KDMA })
}

func (h *deviceHandle) MaxClockFrequencyMHz() (uint64, error) {
	return configValue(h, func(cfg *DeviceConfig) uint64 { return cfg.MaxClockFrequencyMHz })
}

func (h *deviceHandle) M2M() (bool, error) {
	return configValue(h, func(cfg *DeviceConfig) bool { return cfg.M2M })
}

func (h *deviceHandle) NoDMA() (bool, error) {
	return configValue(h, func(cfg *DeviceConfig) bool { return cfg.NoDMA })
}

func (h *deviceHandle) Offline() (bool, error) {
	return configValue(h, func(cfg *DeviceConfig) bool { return cfg.Offline })
}

func (h *deviceHandle) InterfaceUUID() (xrt.UUID, error) {
	unlock, err := h.lock()
	if err != nil {
		return xrt.UUID{}, err
	}
	defer unlock()
	return h.card.interfaceUUID, nil
}

func (h *deviceHandle) XclbinUUID() (xrt.UUID, error) {
	unlock, err := h.lock()
	if err != nil {
		return xrt.UUID{}, err
	}
	defer unlock()
	return h.card.xclbinUUID, nil
}

// Report returns the configured JSON for the report, or "{}" if none was configured.
// The "dynamic_regions" report is generated from the card state.
func (h *deviceHandle) Report(kind xrt.ReportKind) (string, error) {
	unlock, err := h.lock()
	if err != nil {
		return "", err
	}
	defer unlock()
	if kind == xrt.ReportDynamicRegions {
		report, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(
			map[string]string{"xclbin_uuid": h.card.xclbinUUID.String()})
		if err != nil {
			return "", xrt.Errorf(xrt.RuntimeFailure, "encoding dynamic_regions report: %v", err)
		}
		return report, nil
	}
	if report, found := h.card.config.Reports[kind.String()]; found {
		return report, nil
	}
	return "{}", nil
}

func (h *deviceHandle) LoadXclbin(xclbin xrt.XclbinHandle) (xrt.UUID, error) {
	x, ok := xclbin.(*xclbinHandle)
	if !ok {
		return xrt.UUID{}, xrt.Errorf(xrt.ProgrammingFailure, "xclbin of type %T was not created by the sim backend", xclbin)
	}
	unlock, err := h.lock()
	if err != nil {
		return xrt.UUID{}, err
	}
	defer unlock()
	if err = x.check(); err != nil {
		return xrt.UUID{}, err
	}
	if err = h.card.load(x); err != nil {
		return xrt.UUID{}, err
	}
	return h.card.xclbinUUID, nil
}

func (h *deviceHandle) OpenKernel(xclbinID xrt.UUID, name string, mode xrt.CUAccessMode) (xrt.KernelHandle, error) {
	unlock, err := h.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err = h.card.checkLoaded(xclbinID); err != nil {
		return nil, err
	}
	k, err := h.card.openKernel(h.backend, name, mode)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (h *deviceHandle) OpenIP(xclbinID xrt.UUID, name string) (xrt.IPHandle, error) {
	unlock, err := h.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err = h.card.checkLoaded(xclbinID); err != nil {
		return nil, err
	}
	ip, err := h.card.openIP(h.backend, name)
	if err != nil {
		return nil, err
	}
	return ip, nil
}

func (h *deviceHandle) Close() error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	h.closed = true
	return nil
}

// String implements fmt.Stringer.
func (h *deviceHandle) String() string {
	return fmt.Sprintf("sim device %q (%s)", h.card.config.Name, h.card.config.BDF)
}
