// Package sim implements an emulated XRT runtime, registered as the "sim" backend of the xrt package.
//
// It is meant for hosts without FPGA cards and for tests: it emulates the cards described by a Config
// (see ConfigEnv and DefaultConfig), loads xclbin images described in YAML (see Image) and emulates the
// register file of their compute units. There is no hardware behind it: kernels don't run.
//
// To use it:
//
//	import (
//		"github.com/gomlx/goxrt/xrt"
//		_ "github.com/gomlx/goxrt/xrt/sim"
//	)
//
//	runtime, err := xrt.GetRuntime("sim")
//
// Tests that want an isolated set of cards can create their own with New and xrt.NewRuntime.
package sim

import (
	"sync"

	"github.com/gomlx/goxrt/xrt"
	"k8s.io/klog/v2"
)

// BackendName is the name the emulated backend is registered with.
const BackendName = "sim"

func init() {
	cfg, err := configFromEnvironment()
	if err != nil {
		klog.Errorf("Failed to load sim configuration, using the default one: %+v", err)
		cfg = DefaultConfig()
	}
	backend, err := New(cfg)
	if err != nil {
		klog.Fatalf("Failed to create the sim XRT backend: %+v", err)
	}
	if err = xrt.RegisterBackend(BackendName, backend); err != nil {
		klog.Fatalf("Failed to register the sim XRT backend: %+v", err)
	}
}

// Backend emulates the XRT runtime over a fixed set of cards. It implements xrt.Backend.
//
// Devices opened more than once share the same emulated card. All state is protected by one mutex.
type Backend struct {
	mu    sync.Mutex
	cards []*card
	ini   map[string]string
}

// Compile-time check that Backend implements xrt.Backend.
var _ xrt.Backend = (*Backend)(nil)

// New creates an emulated runtime with the cards described by cfg.
func New(cfg *Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{ini: make(map[string]string)}
	for _, devCfg := range cfg.Devices {
		interfaceUUID, err := xrt.ParseUUID(devCfg.InterfaceUUID)
		if err != nil {
			return nil, err
		}
		b.cards = append(b.cards, &card{config: devCfg, interfaceUUID: interfaceUUID})
	}
	return b, nil
}

// Name implements xrt.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// NumDevices returns the number of emulated cards.
func (b *Backend) NumDevices() int {
	return len(b.cards)
}

// OpenDevice implements xrt.Backend.
func (b *Backend) OpenDevice(index int) (xrt.DeviceHandle, error) {
	if index < 0 || index >= len(b.cards) {
		return nil, xrt.Errorf(xrt.DeviceUnavailable, "no device with index %d, there are %d sim devices", index, len(b.cards))
	}
	return b.newDeviceHandle(b.cards[index]), nil
}

// OpenDeviceByBDF implements xrt.Backend.
func (b *Backend) OpenDeviceByBDF(bdf string) (xrt.DeviceHandle, error) {
	normalized := normalizeBDF(bdf)
	for _, c := range b.cards {
		if normalizeBDF(c.config.BDF) == normalized {
			return b.newDeviceHandle(c), nil
		}
	}
	return nil, xrt.Errorf(xrt.DeviceUnavailable, "no sim device with BDF %q", bdf)
}

// NewXclbin implements xrt.Backend: data must be an Image in YAML.
func (b *Backend) NewXclbin(data []byte) (xrt.XclbinHandle, error) {
	img, err := ParseImage(data)
	if err != nil {
		return nil, err
	}
	return newXclbinHandle(img)
}

// SetIni implements xrt.Backend. Settings are only recorded, see Ini.
func (b *Backend) SetIni(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ini[key] = value
	return nil
}

// Ini returns the value last given to SetIni for key.
func (b *Backend) Ini(key string) (value string, found bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, found = b.ini[key]
	return
}
