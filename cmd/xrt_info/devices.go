package main

import (
	"errors"
	"fmt"

	"github.com/gomlx/goxrt/xrt"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newDevicesCmd() *cobra.Command {
	var maxDevices int
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := getRuntime()
			if err != nil {
				return err
			}
			devices, err := openAllDevices(r, maxDevices)
			if err != nil {
				return err
			}
			defer destroyAll(devices)
			if len(devices) == 0 {
				fmt.Printf("No devices found in backend %q\n", r.Name())
				return nil
			}
			return printDevices(devices)
		},
	}
	cmd.Flags().IntVar(&maxDevices, "max", 64, "maximum number of device indices probed")
	return cmd
}

// openAllDevices opens devices 0, 1, ... until the backend reports the index is not available.
func openAllDevices(r *xrt.Runtime, maxDevices int) ([]*xrt.Device, error) {
	var devices []*xrt.Device
	for index := range maxDevices {
		device, err := r.OpenDevice(index)
		if errors.Is(err, xrt.DeviceUnavailable) {
			klog.V(1).Infof("probing stopped at device #%d: %v", index, err)
			break
		}
		if err != nil {
			destroyAll(devices)
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func destroyAll(devices []*xrt.Device) {
	for _, device := range devices {
		if err := device.Destroy(); err != nil {
			klog.Errorf("failed to destroy %s: %v", device, err)
		}
	}
}

func printDevices(devices []*xrt.Device) error {
	t := newTable(table.Row{"#", "Name", "BDF", "Interface UUID", "Max Clock", "KDMA", "Flags", "Xclbin"})
	for _, device := range devices {
		interfaceUUID, err := device.InterfaceUUID()
		if err != nil {
			return err
		}
		clock, err := device.MaxClockFrequencyMHz()
		if err != nil {
			return err
		}
		kdma, err := device.KDMA()
		if err != nil {
			return err
		}
		flags, err := deviceFlags(device)
		if err != nil {
			return err
		}
		xclbin := "-"
		loaded, err := device.IsLoaded()
		if err != nil {
			return err
		}
		if loaded {
			xclbinUUID, err := device.XclbinUUID()
			if err != nil {
				return err
			}
			xclbin = xclbinUUID.String()
		}
		t.AppendRow(table.Row{device.Index(), device.Name(), device.BDF(), interfaceUUID,
			fmt.Sprintf("%d MHz", clock), kdma, flags, xclbin})
	}
	t.Render()
	return nil
}

// deviceFlags lists the boolean capabilities of the device that are set.
func deviceFlags(device *xrt.Device) (string, error) {
	queries := []struct {
		name  string
		query func() (bool, error)
	}{
		{"m2m", device.M2M},
		{"nodma", device.NoDMA},
		{"offline", device.Offline},
	}
	var flags string
	for _, q := range queries {
		set, err := q.query()
		if err != nil {
			return "", err
		}
		if !set {
			continue
		}
		if flags != "" {
			flags += ","
		}
		flags += q.name
	}
	if flags == "" {
		flags = "-"
	}
	return flags, nil
}
