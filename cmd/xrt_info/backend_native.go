//go:build xrt

package main

// Links the XRT runtime: it requires XRT installed, see package github.com/gomlx/goxrt/xrt/native.
import _ "github.com/gomlx/goxrt/xrt/native"
