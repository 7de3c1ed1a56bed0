package xrt

import (
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// IniOptions holds runtime configuration settings, the same keys one would write in an xrt.ini file,
// in the form "Section.key", e.g.: {"Runtime.verbosity": "5", "Debug.native_xrt_trace": "true"}.
type IniOptions map[string]string

var (
	// iniSettings holds the values in effect for the process. Protected by muIni.
	iniSettings = make(map[string]string)

	// muIni serializes SetIni calls, so the value kept in iniSettings is the one last given to the backend.
	muIni sync.Mutex
)

// ParseIniOptions parses settings in the form "key=value;key2=value2". Spaces around keys and values
// are trimmed and empty entries are ignored.
func ParseIniOptions(s string) (IniOptions, error) {
	options := make(IniOptions)
	for _, entry := range strings.Split(s, ";") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		key, value, found := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, Errorf(MalformedInput, "invalid ini setting %q, expected \"key=value\"", entry)
		}
		options[key] = strings.TrimSpace(value)
	}
	return options, nil
}

// SetIni sets the runtime configuration key to value. The setting is process-wide: it affects every
// device and runtime created afterwards, and there is no way to unset it. The last value set wins.
//
// It fails with MalformedInput if the key is empty.
func (r *Runtime) SetIni(key, value string) error {
	if key == "" {
		return Errorf(MalformedInput, "empty ini key")
	}
	muIni.Lock()
	defer muIni.Unlock()
	if err := r.backend.SetIni(key, value); err != nil {
		return errors.WithMessagef(asKind(RuntimeFailure, err), "setting ini %q=%q", key, value)
	}
	iniSettings[key] = value
	klog.V(1).Infof("%s: ini %s=%q", r, key, value)
	return nil
}

// ApplyIni sets all the given options, in the order of the keys.
func (r *Runtime) ApplyIni(options IniOptions) error {
	settingKeys := keys(options)
	slices.Sort(settingKeys)
	for _, key := range settingKeys {
		if err := r.SetIni(key, options[key]); err != nil {
			return err
		}
	}
	return nil
}

// SetIni sets the runtime configuration key to value using the DefaultRuntime. See Runtime.SetIni.
func SetIni(key, value string) error {
	r, err := DefaultRuntime()
	if err != nil {
		return err
	}
	return r.SetIni(key, value)
}

// Ini returns the value in effect for the given key, as last set with SetIni in this process.
func Ini(key string) (value string, found bool) {
	muIni.Lock()
	defer muIni.Unlock()
	value, found = iniSettings[key]
	return
}
