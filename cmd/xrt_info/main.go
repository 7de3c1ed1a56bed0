// xrt_info inspects FPGA devices and xclbin files through the XRT runtime.
//
//	$ xrt_info devices
//	$ xrt_info xclbin vadd.xclbin
//	$ xrt_info load vadd.xclbin --devices=0,1
//	$ xrt_info report thermal --device=0
//
// By default it uses the emulated "sim" backend. Build with `-tags xrt` to link the XRT runtime, which
// is then used by default (see also --backend and $GOXRT_BACKEND).
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/gomlx/goxrt/xrt"
	_ "github.com/gomlx/goxrt/xrt/sim"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	flagBackend string
	flagIni     []string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xrt_info",
		Short: "Inspect FPGA devices and xclbin files with XRT",
		Long: `xrt_info lists the FPGA devices, prints the contents of xclbin files, loads them into devices
and prints the telemetry reports of the devices.

Registered backends: ` + strings.Join(xrt.AvailableBackends(), ", "),
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagBackend, "backend", "",
		"XRT backend to use, if empty it uses $"+xrt.BackendEnv+" or the first of \"native\" and \"sim\" registered")
	flags.StringArrayVar(&flagIni, "ini", nil,
		"runtime configuration setting in the form Section.key=value (e.g. Runtime.verbosity=5), can be repeated")

	// klog flags (-v, -logtostderr, etc.)
	goFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(goFlags)
	flags.AddGoFlagSet(goFlags)

	rootCmd.AddCommand(newDevicesCmd(), newXclbinCmd(), newLoadCmd(), newReportCmd())
	return rootCmd
}

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		klog.V(1).Infof("%+v", err)
		os.Exit(1)
	}
}

// getRuntime returns the runtime selected by --backend, with the --ini settings applied.
func getRuntime() (*xrt.Runtime, error) {
	var r *xrt.Runtime
	var err error
	if flagBackend == "" {
		r, err = xrt.DefaultRuntime()
	} else {
		r, err = xrt.GetRuntime(flagBackend)
	}
	if err != nil {
		return nil, err
	}
	for _, setting := range flagIni {
		options, err := xrt.ParseIniOptions(setting)
		if err != nil {
			return nil, errors.WithMessage(err, "--ini")
		}
		if err = r.ApplyIni(options); err != nil {
			return nil, err
		}
	}
	return r, nil
}
