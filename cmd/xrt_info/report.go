package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/goxrt/xrt"
	"github.com/jedib0t/go-pretty/v6/table"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var (
		deviceIndex int
		raw         bool
	)
	kindNames := make([]string, 0, len(xrt.ReportKinds()))
	for _, kind := range xrt.ReportKinds() {
		kindNames = append(kindNames, kind.String())
	}
	cmd := &cobra.Command{
		Use:       "report <kind>",
		Short:     "Print a telemetry report of a device",
		Long:      "Print a telemetry report of a device. Valid kinds: " + strings.Join(kindNames, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := xrt.ParseReportKind(args[0])
			if err != nil {
				return err
			}
			r, err := getRuntime()
			if err != nil {
				return err
			}
			device, err := r.OpenDevice(deviceIndex)
			if err != nil {
				return err
			}
			defer func() { _ = device.Destroy() }()
			if raw {
				report, err := device.Report(kind)
				if err != nil {
					return err
				}
				fmt.Println(report)
				return nil
			}
			return printReport(device, kind)
		},
	}
	cmd.Flags().IntVar(&deviceIndex, "device", 0, "index of the device")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the JSON report as returned by the runtime")
	return cmd
}

// printReport prints the sensors as tables, and the other reports as the indented decoded JSON.
func printReport(device *xrt.Device, kind xrt.ReportKind) error {
	var decoded any
	var err error
	switch kind {
	case xrt.ReportElectrical:
		var electrical xrt.Electrical
		if electrical, err = device.Electrical(); err != nil {
			return err
		}
		fmt.Printf("Power: %.1f W (max %.1f W)\n", electrical.PowerConsumptionWatts, electrical.PowerConsumptionMaxWatts)
		t := newTable(table.Row{"Rail", "Description", "Volts", "Amps"})
		for _, rail := range electrical.PowerRails {
			t.AppendRow(table.Row{rail.ID, rail.Description, sensorValue(rail.Voltage.IsPresent, rail.Voltage.Volts),
				sensorValue(rail.Current.IsPresent, rail.Current.Amps)})
		}
		t.Render()
		return nil
	case xrt.ReportThermal:
		thermals, err := device.Thermal()
		if err != nil {
			return err
		}
		t := newTable(table.Row{"Location", "Description", "Temperature"})
		for _, thermal := range thermals {
			t.AppendRow(table.Row{thermal.LocationID, thermal.Description, fmt.Sprintf("%d °C", thermal.TempC)})
		}
		t.Render()
		return nil
	case xrt.ReportMechanical:
		decoded, err = device.Mechanical()
	case xrt.ReportMemory:
		decoded, err = device.Memory()
	case xrt.ReportPlatform:
		decoded, err = device.Platform()
	case xrt.ReportPCIeInfo:
		decoded, err = device.PCIeInfo()
	case xrt.ReportHost:
		decoded, err = device.Host()
	case xrt.ReportDynamicRegions:
		decoded, err = device.DynamicRegions()
	default:
		return xrt.Errorf(xrt.NotFound, "report %s not supported", kind)
	}
	if err != nil {
		return err
	}
	text, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(text))
	return nil
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func sensorValue(present bool, value float32) string {
	if !present {
		return "-"
	}
	return fmt.Sprintf("%.2f", value)
}
