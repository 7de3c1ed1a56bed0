package sim

import (
	"bytes"

	"github.com/gomlx/goxrt/xrt"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ImageFormat must be the value of the "format" field of an emulated xclbin image.
const ImageFormat = "goxrt-sim-xclbin/v1"

// Image is the emulated counterpart of an xclbin file: a YAML document describing the platform it was
// built for and its kernels and IPs. There is no bitstream in it.
//
// Example:
//
//	format: goxrt-sim-xclbin/v1
//	xsa_name: xilinx_u250_gen3x16_xdma_shell_4_1
//	uuid: 6f8c2a42-1d3b-4a4e-9b1c-0d2e3f4a5b6c
//	kernels:
//	  - name: vadd
//	    args:
//	      - {name: in1, offset: 0x10, size: 8, host_type: "int*", port: M_AXI_GMEM, mems: [{tag: "DDR[0]", index: 0, type: ddr4, used: true}]}
//	      - {name: size, offset: 0x28, size: 4, host_type: "unsigned int", port: S_AXI_CONTROL}
//	ips:
//	  - {name: "vadd:vadd_1", base_address: 0x1800000}
type Image struct {
	Format  string `yaml:"format"`
	XSAName string `yaml:"xsa_name"`
	UUID    string `yaml:"uuid"`

	// InterfaceUUID of the shell the image was built for. If set, loading it into a device with a
	// different interface UUID fails.
	InterfaceUUID string `yaml:"interface_uuid,omitempty"`

	Kernels []ImageKernel `yaml:"kernels"`
	IPs     []ImageIP     `yaml:"ips,omitempty"`
}

// ImageKernel describes a kernel of an Image.
type ImageKernel struct {
	Name string     `yaml:"name"`
	Args []ImageArg `yaml:"args,omitempty"`
}

// ImageIP describes an IP (compute unit) of an Image. Compute units of kernels are named "<kernel>:<instance>".
type ImageIP struct {
	Name        string     `yaml:"name"`
	BaseAddress uint64     `yaml:"base_address"`
	Args        []ImageArg `yaml:"args,omitempty"`
}

// ImageArg describes an argument of a kernel or IP.
type ImageArg struct {
	Name     string     `yaml:"name"`
	Offset   uint64     `yaml:"offset"`
	Size     uint64     `yaml:"size"`
	HostType string     `yaml:"host_type,omitempty"`
	Port     string     `yaml:"port,omitempty"`
	Mems     []ImageMem `yaml:"mems,omitempty"`
}

// ImageMem describes a memory an argument is connected to. Type is one of the names of xrt.MemType.
type ImageMem struct {
	Tag         string `yaml:"tag"`
	Index       int32  `yaml:"index"`
	BaseAddress uint64 `yaml:"base_address,omitempty"`
	SizeKB      uint64 `yaml:"size_kb,omitempty"`
	Used        bool   `yaml:"used"`
	Type        string `yaml:"type"`
}

// Encode returns the YAML serialization of the image, which can be given to xrt.Runtime.NewXclbin.
// The Format field is filled in if empty.
func (img Image) Encode() ([]byte, error) {
	if img.Format == "" {
		img.Format = ImageFormat
	}
	data, err := yaml.Marshal(&img)
	if err != nil {
		return nil, errors.Wrap(err, "encoding sim xclbin image")
	}
	return data, nil
}

// ParseImage parses and validates an emulated xclbin image. Anything that is not a valid image fails
// with xrt.MalformedInput.
func ParseImage(data []byte) (*Image, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	img := &Image{}
	if err := dec.Decode(img); err != nil {
		return nil, xrt.Errorf(xrt.MalformedInput, "not a sim xclbin image: %v", err)
	}
	if img.Format != ImageFormat {
		return nil, xrt.Errorf(xrt.MalformedInput, "not a sim xclbin image: format %q, expected %q", img.Format, ImageFormat)
	}
	u, err := xrt.ParseUUID(img.UUID)
	if err != nil {
		return nil, errors.WithMessage(err, "sim xclbin image uuid")
	}
	if u.IsZero() {
		return nil, xrt.Errorf(xrt.MalformedInput, "sim xclbin image has a nil uuid")
	}
	if img.InterfaceUUID != "" {
		if _, err := xrt.ParseUUID(img.InterfaceUUID); err != nil {
			return nil, errors.WithMessage(err, "sim xclbin image interface_uuid")
		}
	}
	kernelNames := make(map[string]bool, len(img.Kernels))
	for _, k := range img.Kernels {
		if k.Name == "" {
			return nil, xrt.Errorf(xrt.MalformedInput, "sim xclbin image has a kernel without a name")
		}
		if kernelNames[k.Name] {
			return nil, xrt.Errorf(xrt.MalformedInput, "sim xclbin image has duplicate kernel %q", k.Name)
		}
		kernelNames[k.Name] = true
	}
	ipNames := make(map[string]bool, len(img.IPs))
	for _, ip := range img.IPs {
		if ip.Name == "" {
			return nil, xrt.Errorf(xrt.MalformedInput, "sim xclbin image has an IP without a name")
		}
		if ipNames[ip.Name] {
			return nil, xrt.Errorf(xrt.MalformedInput, "sim xclbin image has duplicate IP %q", ip.Name)
		}
		ipNames[ip.Name] = true
	}
	return img, nil
}

// descriptors converts the image to the descriptors returned by an xclbin handle.
func (img *Image) descriptors() (kernels []xrt.XclbinKernel, ips []xrt.XclbinIP, err error) {
	kernels = make([]xrt.XclbinKernel, len(img.Kernels))
	for ii, k := range img.Kernels {
		kernels[ii].Name = k.Name
		if kernels[ii].Args, err = convertArgs(k.Args); err != nil {
			return nil, nil, errors.WithMessagef(err, "kernel %q", k.Name)
		}
	}
	ips = make([]xrt.XclbinIP, len(img.IPs))
	for ii, ip := range img.IPs {
		ips[ii].Name = ip.Name
		ips[ii].BaseAddress = ip.BaseAddress
		if ips[ii].Args, err = convertArgs(ip.Args); err != nil {
			return nil, nil, errors.WithMessagef(err, "IP %q", ip.Name)
		}
	}
	return kernels, ips, nil
}

func convertArgs(args []ImageArg) ([]xrt.XclbinArg, error) {
	converted := make([]xrt.XclbinArg, len(args))
	for ii, arg := range args {
		converted[ii] = xrt.XclbinArg{
			Name:     arg.Name,
			Index:    ii,
			Offset:   arg.Offset,
			Size:     arg.Size,
			HostType: arg.HostType,
			Port:     arg.Port,
		}
		for _, mem := range arg.Mems {
			memType, err := xrt.ParseMemType(mem.Type)
			if err != nil {
				return nil, xrt.Errorf(xrt.MalformedInput, "argument %q: %v", arg.Name, err)
			}
			converted[ii].Mems = append(converted[ii].Mems, xrt.XclbinMem{
				Tag:         mem.Tag,
				Index:       mem.Index,
				BaseAddress: mem.BaseAddress,
				SizeKB:      mem.SizeKB,
				Used:        mem.Used,
				Type:        memType,
			})
		}
	}
	return converted, nil
}
