package xrt

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// BackendEnv is the name of the environment variable that selects the backend used by DefaultRuntime.
	BackendEnv = "GOXRT_BACKEND"

	// IniEnv is the name of the environment variable with ini settings applied when a registered runtime
	// is first created, in the form "key=value;key2=value2". See ParseIniOptions.
	IniEnv = "GOXRT_INI"
)

var (
	// registeredBackends maps names to backends registered with RegisterBackend. Protected by muRuntimes.
	registeredBackends = make(map[string]Backend)

	// loadedRuntimes caches the runtimes already created by GetRuntime. Protected by muRuntimes.
	loadedRuntimes = make(map[string]*Runtime)
	muRuntimes     sync.Mutex

	// defaultBackendsOrder is the order of preference of DefaultRuntime, if BackendEnv is not set.
	defaultBackendsOrder = []string{"native", "sim"}
)

// RegisterBackend makes a backend available with the given name. It is usually called from the
// init() function of the backend package.
//
// It fails if a backend with the same name was already registered.
func RegisterBackend(name string, backend Backend) error {
	if name == "" || backend == nil {
		return Errorf(MalformedInput, "RegisterBackend requires a name and a non-nil backend")
	}
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	if _, found := registeredBackends[name]; found {
		return errors.Errorf("backend %q already registered", name)
	}
	registeredBackends[name] = backend
	klog.V(1).Infof("registered XRT backend %q", name)
	return nil
}

// AvailableBackends returns the names of the registered backends, sorted.
func AvailableBackends() []string {
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	names := keys(registeredBackends)
	slices.Sort(names)
	return names
}

// Runtime is the entry point to a runtime backend: devices and xclbins are created from it.
//
// Runtimes created by GetRuntime are singletons per backend name and cached.
type Runtime struct {
	name    string
	backend Backend
}

// NewRuntime creates a Runtime for the given backend, and applies the ini options to it.
//
// Most users will use GetRuntime or DefaultRuntime instead, this is useful for backends that
// are not registered, e.g. an emulated backend created for a test.
func NewRuntime(backend Backend, options IniOptions) (*Runtime, error) {
	if backend == nil {
		return nil, Errorf(MalformedInput, "NewRuntime requires a non-nil backend")
	}
	r := &Runtime{name: backend.Name(), backend: backend}
	if err := r.ApplyIni(options); err != nil {
		return nil, errors.WithMessagef(err, "initializing runtime %q", r.name)
	}
	return r, nil
}

// GetRuntime returns the runtime for the backend registered with the given name.
// The first time it is called for a backend, the ini options from the environment variable IniEnv
// are applied.
//
// It is safe to call from different goroutines.
func GetRuntime(name string) (*Runtime, error) {
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	if r, found := loadedRuntimes[name]; found {
		return r, nil
	}
	backend, found := registeredBackends[name]
	if !found {
		return nil, Errorf(NotFound, "XRT backend %q not registered (registered: %v): import "+
			"github.com/gomlx/goxrt/xrt/native or github.com/gomlx/goxrt/xrt/sim", name, keys(registeredBackends))
	}
	options, err := ParseIniOptions(os.Getenv(IniEnv))
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing $%s", IniEnv)
	}
	r, err := NewRuntime(backend, options)
	if err != nil {
		return nil, err
	}
	loadedRuntimes[name] = r
	return r, nil
}

// DefaultRuntime returns the runtime selected by the environment variable BackendEnv, or, if not set,
// the first registered of "native" and "sim".
func DefaultRuntime() (*Runtime, error) {
	name := os.Getenv(BackendEnv)
	if name == "" {
		name = defaultBackendName()
	}
	return GetRuntime(name)
}

func defaultBackendName() string {
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	for _, name := range defaultBackendsOrder {
		if _, found := registeredBackends[name]; found {
			return name
		}
	}
	return defaultBackendsOrder[0]
}

// Name returns the name of the backend used by the runtime.
func (r *Runtime) Name() string {
	return r.name
}

// String implements fmt.Stringer.
func (r *Runtime) String() string {
	return fmt.Sprintf("XRT runtime %q", r.name)
}

// OpenDevice opens the device with the given index.
//
// It fails with MalformedInput for negative indices and with DeviceUnavailable if the runtime can't
// open it.
func (r *Runtime) OpenDevice(index int) (*Device, error) {
	if index < 0 {
		return nil, Errorf(MalformedInput, "invalid device index %d", index)
	}
	handle, err := r.backend.OpenDevice(index)
	if err != nil {
		return nil, errors.WithMessagef(asKind(DeviceUnavailable, err), "opening device %d", index)
	}
	return newDevice(r, handle, index), nil
}

// OpenDeviceByBDF opens the device with the given PCIe address in the form "bus:device.function",
// e.g.: "0000:65:00.1".
func (r *Runtime) OpenDeviceByBDF(bdf string) (*Device, error) {
	if bdf == "" {
		return nil, Errorf(MalformedInput, "empty BDF given to OpenDeviceByBDF")
	}
	handle, err := r.backend.OpenDeviceByBDF(bdf)
	if err != nil {
		return nil, errors.WithMessagef(asKind(DeviceUnavailable, err), "opening device %q", bdf)
	}
	return newDevice(r, handle, -1), nil
}

// OpenDevice opens the device with the given index, using the DefaultRuntime.
func OpenDevice(index int) (*Device, error) {
	r, err := DefaultRuntime()
	if err != nil {
		return nil, err
	}
	return r.OpenDevice(index)
}

// OpenDeviceByBDF opens the device with the given PCIe address, using the DefaultRuntime.
func OpenDeviceByBDF(bdf string) (*Device, error) {
	r, err := DefaultRuntime()
	if err != nil {
		return nil, err
	}
	return r.OpenDeviceByBDF(bdf)
}
