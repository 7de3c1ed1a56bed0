package sim

import (
	"strings"

	"github.com/gomlx/goxrt/xrt"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ConfigEnv is the environment variable with the path to a configuration file (YAML, JSON or TOML, anything
// supported by viper) describing the emulated devices. If not set, DefaultConfig is used.
const ConfigEnv = "GOXRT_SIM_CONFIG"

// Config describes the emulated devices, in the order of their indices.
//
// Example of a YAML configuration file:
//
//	devices:
//	  - name: xilinx_u250_gen3x16_xdma_shell_4_1
//	    bdf: "0000:65:00.1"
//	    interface_uuid: 15bf5b04-d9c5-4d4c-a8a3-b2d2f3b0ad1e
//	    max_clock_frequency_mhz: 300
//	    m2m: true
//	    reports:
//	      host: '{"version": "2.16.0"}'
type Config struct {
	Devices []DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig describes one emulated card.
type DeviceConfig struct {
	Name                 string `mapstructure:"name"`
	BDF                  string `mapstructure:"bdf"`
	InterfaceUUID        string `mapstructure:"interface_uuid"`
	KDMA                 uint32 `mapstructure:"kdma"`
	MaxClockFrequencyMHz uint64 `mapstructure:"max_clock_frequency_mhz"`
	M2M                  bool   `mapstructure:"m2m"`
	NoDMA                bool   `mapstructure:"nodma"`
	Offline              bool   `mapstructure:"offline"`

	// Reports maps report names (see xrt.ReportKind) to the JSON returned for them.
	// The "dynamic_regions" report is always generated from the state of the card.
	Reports map[string]string `mapstructure:"reports"`
}

// LoadConfig reads the configuration file with viper.
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading sim configuration %q", filePath)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding sim configuration %q", filePath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "sim configuration %q", filePath)
	}
	return cfg, nil
}

// configFromEnvironment loads the configuration file pointed by ConfigEnv, or returns the DefaultConfig.
func configFromEnvironment() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("goxrt_sim")
	if err := v.BindEnv("config"); err != nil {
		return nil, errors.Wrapf(err, "binding $%s", ConfigEnv)
	}
	filePath := v.GetString("config")
	if filePath == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(filePath)
}

// Validate checks that every device has a name, a unique BDF and a valid interface UUID.
func (cfg *Config) Validate() error {
	if cfg == nil || len(cfg.Devices) == 0 {
		return xrt.Errorf(xrt.MalformedInput, "sim configuration has no devices")
	}
	seenBDFs := make(map[string]int, len(cfg.Devices))
	for ii, dev := range cfg.Devices {
		if dev.Name == "" {
			return xrt.Errorf(xrt.MalformedInput, "sim device #%d has no name", ii)
		}
		if dev.BDF == "" {
			return xrt.Errorf(xrt.MalformedInput, "sim device #%d (%q) has no BDF", ii, dev.Name)
		}
		bdf := normalizeBDF(dev.BDF)
		if prev, found := seenBDFs[bdf]; found {
			return xrt.Errorf(xrt.MalformedInput, "sim devices #%d and #%d have the same BDF %q", prev, ii, dev.BDF)
		}
		seenBDFs[bdf] = ii
		if _, err := xrt.ParseUUID(dev.InterfaceUUID); err != nil {
			return errors.WithMessagef(err, "sim device #%d (%q)", ii, dev.Name)
		}
		for name := range dev.Reports {
			if _, err := xrt.ParseReportKind(name); err != nil {
				return xrt.Errorf(xrt.MalformedInput, "sim device #%d (%q) configures unknown report %q", ii, dev.Name, name)
			}
		}
	}
	return nil
}

// normalizeBDF drops the PCIe domain if it is the default one, so "0000:65:00.1" and "65:00.1" match.
func normalizeBDF(bdf string) string {
	return strings.ToLower(strings.TrimPrefix(bdf, "0000:"))
}

// DefaultInterfaceUUID is the interface UUID of the device in DefaultConfig.
const DefaultInterfaceUUID = "15bf5b04-d9c5-4d4c-a8a3-b2d2f3b0ad1e"

// DefaultConfig returns a configuration with one Alveo U250 like card.
func DefaultConfig() *Config {
	return &Config{
		Devices: []DeviceConfig{{
			Name:                 "xilinx_u250_gen3x16_xdma_shell_4_1",
			BDF:                  "0000:65:00.1",
			InterfaceUUID:        DefaultInterfaceUUID,
			KDMA:                 0,
			MaxClockFrequencyMHz: 300,
			M2M:                  true,
			Reports: map[string]string{
				"electrical": defaultElectricalReport,
				"thermal":    defaultThermalReport,
				"mechanical": defaultMechanicalReport,
				"memory":     defaultMemoryReport,
				"platform":   defaultPlatformReport,
				"pcie_info":  defaultPCIeInfoReport,
				"host":       defaultHostReport,
			},
		}},
	}
}

const (
	defaultElectricalReport = `{
  "power_consumption_max_watts": "225",
  "power_consumption_warning": "false",
  "power_consumption_watts": "24.5",
  "power_rails": [
    {"id": "12v_pex", "description": "12 Volts PCI Express",
     "current": {"amps": "1.2", "is_present": "true"}, "voltage": {"volts": "12.1", "is_present": "true"}},
    {"id": "3v3_pex", "description": "3.3 Volts PCI Express",
     "current": {"amps": "0", "is_present": "false"}, "voltage": {"volts": "3.3", "is_present": "true"}},
    {"id": "vccint", "description": "Internal FPGA Vcc",
     "current": {"amps": "0", "is_present": "false"}, "voltage": {"volts": "0", "is_present": "false"}}
  ]
}`

	defaultThermalReport = `{
  "thermals": [
    {"location_id": "pcb_top_front", "description": "PCB Top Front", "temp_C": "38", "is_present": "true"},
    {"location_id": "fpga0", "description": "FPGA", "temp_C": "52", "is_present": "true"},
    {"location_id": "vccint", "description": "Vccint", "temp_C": "0", "is_present": "false"}
  ]
}`

	defaultMechanicalReport = `{
  "fans": [
    {"location_id": "fpga_fan_1", "description": "FPGA Fan 1", "speed_rpm": "3500",
     "critical_trigger_temp_C": "65", "is_present": "true"}
  ]
}`

	defaultMemoryReport = `{
  "board": {
    "direct_memory_accesses": {
      "type": "xdma",
      "metrics": [
        {"channel_id": "0", "host_to_card_bytes": "0x0", "card_to_host_bytes": "0x0"},
        {"channel_id": "1", "host_to_card_bytes": "0x0", "card_to_host_bytes": "0x0"}
      ]
    },
    "memory": {
      "data_streams": [],
      "memories": [
        {"type": "MEM_DDR4", "tag": "bank0", "enabled": "true", "base_address": "0x4000000000",
         "range_bytes": "0x400000000", "extended_info": {"usage": {"allocated_bytes": "0", "buffer_objects_count": "0"}}},
        {"type": "MEM_DDR4", "tag": "bank1", "enabled": "true", "base_address": "0x5000000000",
         "range_bytes": "0x400000000", "extended_info": {"usage": {"allocated_bytes": "0", "buffer_objects_count": "0"}}}
      ]
    }
  }
}`

	defaultPlatformReport = `{
  "": {
    "controller": {
      "card_mgmt_controller": {"oem_id": "0x10da", "serial_number": "SIM000000001", "version": "4.4.35"},
      "satellite_controller": {"expected_version": "4.4.35", "version": "4.4.35"}
    },
    "macs": [{"address": "00:0A:35:00:00:01"}, {"address": "00:0A:35:00:00:02"}],
    "off_chip_board_info": {"ddr_count": "4", "ddr_size_bytes": "68719476736"},
    "static_region": {
      "fpga_name": "xcu250-figd2104-2L-e",
      "interface_uuid": "15bf5b04-d9c5-4d4c-a8a3-b2d2f3b0ad1e",
      "jtag_idcode": "0x4b57093",
      "vbnv": "xilinx_u250_gen3x16_xdma_shell_4_1"
    },
    "status": {"mig_calibrated": "true", "p2p_status": "not supported"}
  }
}`

	defaultPCIeInfoReport = `{
  "cpu_affinity": "0-15",
  "device": "0x5005",
  "dma_thread_count": "2",
  "express_lane_width_count": "16",
  "link_speed_gbit_sec": "8",
  "max_shared_host_mem_aperture_bytes": "0",
  "sub_device": "0x000e",
  "sub_vendor": "0x10ee",
  "vendor": "0x10ee"
}`

	defaultHostReport = `{"branch": "sim", "build_date": "", "hash": "", "version": "2.16.0"}`
)
