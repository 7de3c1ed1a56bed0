package xrt

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReport(t *testing.T) {
	report := `{
  "power_consumption_max_watts": "75",
  "power_consumption_warning": "true",
  "power_consumption_watts": "12.25",
  "power_rails": [
    {"id": "12v_aux", "description": "12 Volts Auxillary",
     "current": {"amps": "0.5", "is_present": "true"}, "voltage": {"volts": "12", "is_present": "true"}}
  ]
}`
	electrical, err := decodeReport[Electrical](ReportElectrical, report)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, electrical.PowerConsumptionMaxWatts, 1e-6)
	assert.True(t, electrical.PowerConsumptionWarning)
	assert.InDelta(t, 12.25, electrical.PowerConsumptionWatts, 1e-6)
	require.Len(t, electrical.PowerRails, 1)
	assert.Equal(t, "12 Volts Auxillary", electrical.PowerRails[0].Description)
	assert.InDelta(t, 0.5, electrical.PowerRails[0].Current.Amps, 1e-6)

	// Numbers that are not strings are an error.
	_, err = decodeReport[Thermal](ReportThermal, `{"temp_C": 38}`)
	require.ErrorIs(t, err, RuntimeFailure)
	_, err = decodeReport[Host](ReportHost, `not json`)
	require.ErrorIs(t, err, RuntimeFailure)
}

func TestDecodePlatformReport(t *testing.T) {
	inner := `{"static_region": {"vbnv": "xilinx_u55c_gen3x16_xdma_base_3"}, "off_chip_board_info": {"ddr_count": "2", "ddr_size_bytes": "34359738368"}}`
	for _, report := range []string{inner, `{"": ` + inner + `}`} {
		platform, err := decodePlatformReport(report)
		require.NoError(t, err)
		assert.Equal(t, "xilinx_u55c_gen3x16_xdma_base_3", platform.StaticRegion.VBNV)
		assert.Equal(t, uint8(2), platform.OffChipBoardInfo.DDRCount)
		assert.Equal(t, uint64(34359738368), platform.OffChipBoardInfo.DDRSizeBytes)
	}
}

func TestReportKinds(t *testing.T) {
	kinds := ReportKinds()
	require.Len(t, kinds, 8)
	for _, kind := range kinds {
		parsed, err := ParseReportKind(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}
	require.Equal(t, "pcie_info", ReportPCIeInfo.String())
	_, err := ParseReportKind("power")
	require.ErrorIs(t, err, NotFound)
}

func TestParseHexOrDecimal(t *testing.T) {
	for s, want := range map[string]uint64{"0x0": 0, "0x4000000000": 0x4000000000, "1024": 1024} {
		got, err := parseHexOrDecimal(s)
		require.NoError(t, err)
		require.Equal(t, want, got, "parsing %q", s)
	}
	_, err := parseHexOrDecimal("")
	require.Error(t, err)
	m := DMAMetric{HostToCardBytes: "0x10", CardToHostBytes: "x"}
	require.Equal(t, uint64(16), must.M1(m.HostToCard()))
	_, err = m.CardToHost()
	require.Error(t, err)
}
