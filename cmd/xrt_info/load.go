package main

import (
	"fmt"
	"sync"

	"github.com/gomlx/goxrt/xrt"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

func newLoadCmd() *cobra.Command {
	var (
		deviceIndices []int
		kernelName    string
		modeName      string
	)
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load an xclbin file into one or more devices",
		Long: `Load an xclbin file into one or more devices, concurrently.

If --kernel is given, the kernel is opened on each device after the load, to check its compute units
can be acquired.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := xrt.ParseCUAccessMode(modeName)
			if err != nil {
				return err
			}
			r, err := getRuntime()
			if err != nil {
				return err
			}
			xclbin, err := r.NewXclbinFromFile(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = xclbin.Destroy() }()
			return loadDevices(r, xclbin, deviceIndices, kernelName, mode)
		},
	}
	cmd.Flags().IntSliceVar(&deviceIndices, "devices", []int{0}, "indices of the devices to load")
	cmd.Flags().StringVar(&kernelName, "kernel", "", "kernel to open after loading, e.g. \"vadd\" or \"vadd:{vadd_1,vadd_2}\"")
	cmd.Flags().StringVar(&modeName, "mode", xrt.Exclusive.String(), "compute unit access mode for --kernel: exclusive or shared")
	return cmd
}

// loadDevices loads xclbin in each device in parallel, and reports on each success.
func loadDevices(r *xrt.Runtime, xclbin *xrt.Xclbin, indices []int, kernelName string, mode xrt.CUAccessMode) error {
	var printMu sync.Mutex
	var g errgroup.Group
	for _, index := range indices {
		g.Go(func() error {
			device, err := r.OpenDevice(index)
			if err != nil {
				return errors.WithMessagef(err, "device #%d", index)
			}
			defer func() {
				if err := device.Destroy(); err != nil {
					klog.Errorf("failed to destroy %s: %v", device, err)
				}
			}()
			u, err := device.LoadXclbin(xclbin)
			if err != nil {
				return errors.WithMessagef(err, "device #%d", index)
			}
			msg := fmt.Sprintf("device #%d (%s): loaded %s", index, device.BDF(), u)
			if kernelName != "" {
				kernel, err := xrt.NewKernel(device, u, kernelName, mode)
				if err != nil {
					return errors.WithMessagef(err, "device #%d", index)
				}
				msg += fmt.Sprintf(", opened %s", kernel)
				if err = kernel.Destroy(); err != nil {
					return errors.WithMessagef(err, "device #%d", index)
				}
			}
			printMu.Lock()
			defer printMu.Unlock()
			fmt.Println(msg)
			return nil
		})
	}
	return g.Wait()
}
