package sim

import (
	"github.com/gomlx/goxrt/xrt"
	"github.com/pkg/errors"
)

// xclbinHandle is a parsed Image. It implements xrt.XclbinHandle.
type xclbinHandle struct {
	image         *Image
	uuid          xrt.UUID
	interfaceUUID xrt.UUID // Zero if the image doesn't restrict the shell.
	kernels       []xrt.XclbinKernel
	ips           []xrt.XclbinIP
	closed        bool
}

func newXclbinHandle(img *Image) (*xclbinHandle, error) {
	x := &xclbinHandle{image: img}
	var err error
	if x.uuid, err = xrt.ParseUUID(img.UUID); err != nil {
		return nil, err
	}
	if img.InterfaceUUID != "" {
		if x.interfaceUUID, err = xrt.ParseUUID(img.InterfaceUUID); err != nil {
			return nil, err
		}
	}
	if x.kernels, x.ips, err = img.descriptors(); err != nil {
		return nil, errors.WithMessage(err, "sim xclbin image")
	}
	return x, nil
}

func (x *xclbinHandle) check() error {
	if x.closed {
		return xrt.Errorf(xrt.RuntimeFailure, "sim xclbin %s already closed", x.uuid)
	}
	return nil
}

func (x *xclbinHandle) XSAName() (string, error) {
	return x.image.XSAName, x.check()
}

func (x *xclbinHandle) UUID() (xrt.UUID, error) {
	return x.uuid, x.check()
}

func (x *xclbinHandle) Kernels() ([]xrt.XclbinKernel, error) {
	return x.kernels, x.check()
}

func (x *xclbinHandle) IPs() ([]xrt.XclbinIP, error) {
	return x.ips, x.check()
}

func (x *xclbinHandle) Close() error {
	x.closed = true
	return nil
}
