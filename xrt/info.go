package xrt

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ReportKind enumerates the JSON reports a device can produce, see Device.Report.
type ReportKind int

const (
	ReportElectrical ReportKind = iota
	ReportThermal
	ReportMechanical
	ReportMemory
	ReportPlatform
	ReportPCIeInfo
	ReportHost
	ReportDynamicRegions
)

// reportKindNames are the names used by XRT for each report (xrt::info::device::<name>).
var reportKindNames = []string{
	ReportElectrical:     "electrical",
	ReportThermal:        "thermal",
	ReportMechanical:     "mechanical",
	ReportMemory:         "memory",
	ReportPlatform:       "platform",
	ReportPCIeInfo:       "pcie_info",
	ReportHost:           "host",
	ReportDynamicRegions: "dynamic_regions",
}

// String implements fmt.Stringer.
func (k ReportKind) String() string {
	if k < 0 || int(k) >= len(reportKindNames) {
		return fmt.Sprintf("ReportKind(%d)", int(k))
	}
	return reportKindNames[k]
}

// ReportKinds returns all report kinds.
func ReportKinds() []ReportKind {
	kinds := make([]ReportKind, len(reportKindNames))
	for ii := range kinds {
		kinds[ii] = ReportKind(ii)
	}
	return kinds
}

// ParseReportKind converts the XRT name of a report (e.g. "pcie_info") to a ReportKind.
func ParseReportKind(name string) (ReportKind, error) {
	for ii, kindName := range reportKindNames {
		if kindName == name {
			return ReportKind(ii), nil
		}
	}
	return 0, Errorf(NotFound, "unknown report %q, valid reports are %v", name, reportKindNames)
}

// json mimics encoding/json, including the ",string" field option used by XRT reports: most numbers
// and booleans are reported as JSON strings.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// decodeReport parses the JSON report into a value of type T.
func decodeReport[T any](kind ReportKind, report string) (T, error) {
	var value T
	if err := json.UnmarshalFromString(report, &value); err != nil {
		return value, Errorf(RuntimeFailure, "failed to decode %s report: %v", kind, err)
	}
	return value, nil
}

// parseHexOrDecimal parses the address/size strings XRT uses in its reports, e.g.: "0x4000000000".
func parseHexOrDecimal(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid number %q", s)
	}
	return v, nil
}

// Electrical holds the power consumption report of a device.
type Electrical struct {
	PowerConsumptionMaxWatts float32     `json:"power_consumption_max_watts,string"`
	PowerConsumptionWarning  bool        `json:"power_consumption_warning,string"`
	PowerConsumptionWatts    float32     `json:"power_consumption_watts,string"`
	PowerRails               []PowerRail `json:"power_rails"`
}

// PowerRail of the board, with its current and voltage sensors.
type PowerRail struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Current     Current `json:"current"`
	Voltage     Voltage `json:"voltage"`
}

// Current sensor reading.
type Current struct {
	Amps      float32 `json:"amps,string"`
	IsPresent bool    `json:"is_present,string"`
	ErrorMsg  string  `json:"error_msg,omitempty"`
}

// Voltage sensor reading.
type Voltage struct {
	Volts     float32 `json:"volts,string"`
	IsPresent bool    `json:"is_present,string"`
	ErrorMsg  string  `json:"error_msg,omitempty"`
}

// Thermal is one temperature sensor of the board.
type Thermal struct {
	LocationID  string `json:"location_id"`
	Description string `json:"description"`
	TempC       uint8  `json:"temp_C,string"`
	IsPresent   bool   `json:"is_present,string"`
}

type thermalReport struct {
	Thermals []Thermal `json:"thermals"`
}

// Mechanical holds the fans of the board.
type Mechanical struct {
	Fans []Fan `json:"fans"`
}

// Fan of the board.
type Fan struct {
	LocationID           string `json:"location_id"`
	Description          string `json:"description"`
	SpeedRPM             uint16 `json:"speed_rpm,string"`
	CriticalTriggerTempC uint8  `json:"critical_trigger_temp_C,string"`
	IsPresent            bool   `json:"is_present,string"`
}

// Memory report: Board is nil if the runtime couldn't query it, in which case ErrorMsg says why.
type Memory struct {
	Board    *MemoryBoard `json:"board,omitempty"`
	ErrorMsg string       `json:"error_msg,omitempty"`
}

// MemoryBoard holds the DMA channels and memory banks of the board.
type MemoryBoard struct {
	DirectMemoryAccesses DirectMemoryAccesses `json:"direct_memory_accesses"`
	Memory               BoardMemory          `json:"memory"`
}

// DirectMemoryAccesses lists the DMA channels and their transfer counters.
type DirectMemoryAccesses struct {
	Metrics []DMAMetric `json:"metrics"`
	Type    string      `json:"type"`
}

// DMAMetric is the transfer counter of one DMA channel.
type DMAMetric struct {
	ChannelID       uint8  `json:"channel_id,string"`
	CardToHostBytes string `json:"card_to_host_bytes"`
	HostToCardBytes string `json:"host_to_card_bytes"`
}

// CardToHost returns the number of bytes transferred from card to host.
func (m DMAMetric) CardToHost() (uint64, error) { return parseHexOrDecimal(m.CardToHostBytes) }

// HostToCard returns the number of bytes transferred from host to card.
func (m DMAMetric) HostToCard() (uint64, error) { return parseHexOrDecimal(m.HostToCardBytes) }

// BoardMemory lists memory banks and data streams.
type BoardMemory struct {
	DataStreams []DataStream `json:"data_streams"`
	Memories    []MemoryBank `json:"memories"`
}

// DataStream is a streaming connection of the board.
type DataStream struct {
	Tag string `json:"tag"`
}

// MemoryBank describes one memory of the board, e.g. "DDR[0]", "HBM[12]" or "PLRAM[1]".
type MemoryBank struct {
	BaseAddress  string             `json:"base_address"`
	Enabled      bool               `json:"enabled,string"`
	ErrorMsg     string             `json:"error_msg,omitempty"`
	ExtendedInfo MemoryExtendedInfo `json:"extended_info"`
	RangeBytes   string             `json:"range_bytes"`
	Tag          string             `json:"tag"`
	Type         string             `json:"type"`
}

// Base returns the base address of the memory bank.
func (m MemoryBank) Base() (uint64, error) { return parseHexOrDecimal(m.BaseAddress) }

// Range returns the size of the memory bank in bytes.
func (m MemoryBank) Range() (uint64, error) { return parseHexOrDecimal(m.RangeBytes) }

// MemoryExtendedInfo holds the usage of a memory bank.
type MemoryExtendedInfo struct {
	Usage MemoryUsage `json:"usage"`
}

// MemoryUsage of a memory bank.
type MemoryUsage struct {
	AllocatedBytes     uint64 `json:"allocated_bytes,string"`
	BufferObjectsCount uint64 `json:"buffer_objects_count,string"`
}

// Platform report: controllers, MAC addresses, static region (shell) and status.
type Platform struct {
	Controller       PlatformController `json:"controller"`
	MACs             []MAC              `json:"macs"`
	OffChipBoardInfo OffChipBoardInfo   `json:"off_chip_board_info"`
	StaticRegion     StaticRegion       `json:"static_region"`
	Status           PlatformStatus     `json:"status"`
}

// PlatformController holds the versions of the board controllers.
type PlatformController struct {
	CardMgmtController  CardMgmtController  `json:"card_mgmt_controller"`
	SatelliteController SatelliteController `json:"satellite_controller"`
}

// CardMgmtController information.
type CardMgmtController struct {
	OEMID        string `json:"oem_id"`
	SerialNumber string `json:"serial_number"`
	Version      string `json:"version"`
}

// SatelliteController information.
type SatelliteController struct {
	ExpectedVersion string `json:"expected_version"`
	Version         string `json:"version"`
}

// MAC address of the board.
type MAC struct {
	Address string `json:"address"`
}

// OffChipBoardInfo describes the DDR memory of the board.
type OffChipBoardInfo struct {
	DDRCount     uint8  `json:"ddr_count,string"`
	DDRSizeBytes uint64 `json:"ddr_size_bytes,string"`
}

// StaticRegion describes the shell programmed on the device.
type StaticRegion struct {
	FPGAName      string `json:"fpga_name"`
	InterfaceUUID string `json:"interface_uuid"`
	JTAGIDCode    string `json:"jtag_idcode"`
	VBNV          string `json:"vbnv"`
}

// PlatformStatus of the device.
type PlatformStatus struct {
	MIGCalibrated bool   `json:"mig_calibrated,string"`
	P2PStatus     string `json:"p2p_status"`
}

// PCIeInfo describes the PCIe link of the device.
type PCIeInfo struct {
	CPUAffinity                   string `json:"cpu_affinity"`
	Device                        string `json:"device"`
	DMAThreadCount                uint8  `json:"dma_thread_count,string"`
	ExpressLaneWidthCount         uint8  `json:"express_lane_width_count,string"`
	LinkSpeedGbitSec              uint16 `json:"link_speed_gbit_sec,string"`
	MaxSharedHostMemApertureBytes uint64 `json:"max_shared_host_mem_aperture_bytes,string"`
	SubDevice                     string `json:"sub_device"`
	SubVendor                     string `json:"sub_vendor"`
	Vendor                        string `json:"vendor"`
}

// Host describes the XRT build installed in the host.
type Host struct {
	Branch    string `json:"branch"`
	BuildDate string `json:"build_date"`
	Hash      string `json:"hash"`
	Version   string `json:"version"`
}

// DynamicRegions describes what is loaded in the programmable region of the device.
type DynamicRegions struct {
	XclbinUUIDText string `json:"xclbin_uuid"`
}

// XclbinUUID parses the UUID of the loaded xclbin.
func (r DynamicRegions) XclbinUUID() (UUID, error) {
	return ParseUUID(r.XclbinUUIDText)
}

// decodePlatformReport handles the platform report, which some XRT versions wrap in an object with
// a single empty key.
func decodePlatformReport(report string) (Platform, error) {
	var wrapper map[string]jsoniter.RawMessage
	if err := json.UnmarshalFromString(report, &wrapper); err == nil {
		if inner, found := wrapper[""]; found && len(wrapper) == 1 {
			report = string(inner)
		}
	}
	return decodeReport[Platform](ReportPlatform, report)
}
