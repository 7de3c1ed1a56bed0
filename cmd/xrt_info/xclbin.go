package main

import (
	"fmt"
	"strings"

	"github.com/gomlx/goxrt/xrt"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newXclbinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "xclbin <file>",
		Short: "Print the kernels, arguments and IPs of an xclbin file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := getRuntime()
			if err != nil {
				return err
			}
			xclbin, err := r.NewXclbinFromFile(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = xclbin.Destroy() }()
			printXclbin(xclbin)
			return nil
		},
	}
}

func printXclbin(xclbin *xrt.Xclbin) {
	fmt.Printf("XSA:  %s\n", xclbin.XSAName())
	fmt.Printf("UUID: %s\n", xclbin.UUID())

	for _, kernel := range xclbin.Kernels() {
		fmt.Printf("\nKernel %q:\n", kernel.Name)
		printArgs(kernel.Args)
	}
	ips := xclbin.IPs()
	if len(ips) == 0 {
		return
	}
	fmt.Println()
	t := newTable(table.Row{"IP", "Base Address", "Args"})
	for _, ip := range ips {
		t.AppendRow(table.Row{ip.Name, fmt.Sprintf("0x%x", ip.BaseAddress), len(ip.Args)})
	}
	t.Render()
}

func printArgs(args []xrt.XclbinArg) {
	if len(args) == 0 {
		fmt.Println("  (no arguments)")
		return
	}
	t := newTable(table.Row{"#", "Name", "Offset", "Size", "Host Type", "Port", "Memories"})
	for _, arg := range args {
		mems := make([]string, 0, len(arg.Mems))
		for _, mem := range arg.Mems {
			mems = append(mems, fmt.Sprintf("%s(%s, idx=%d)", mem.Tag, mem.Type, mem.Index))
		}
		t.AppendRow(table.Row{arg.Index, arg.Name, fmt.Sprintf("0x%x", arg.Offset), arg.Size,
			arg.HostType, arg.Port, strings.Join(mems, " ")})
	}
	t.Render()
}
