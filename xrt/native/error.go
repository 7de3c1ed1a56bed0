package native

// #include <stdlib.h>
// #include "shim.h"
import "C"
import (
	"github.com/gomlx/goxrt/xrt"
)

// toError converts a *C.goxrt_error to an *xrt.Error with the kind reported by the shim, with a stack
// trace (see github.com/pkg/errors package).
// If the incoming error is nil, it returns nil as well.
// At the end this frees the C error.
func toError(cErr *C.goxrt_error) error {
	if cErr == nil {
		return nil
	}
	kind := xrt.ErrorKind(cErr.code)
	msg := cGoString(cErr.message)
	C.goxrt_error_destroy(cErr)
	if kind < xrt.RuntimeFailure || kind > xrt.BitstreamMismatch {
		kind = xrt.RuntimeFailure
	}
	return xrt.Errorf(kind, "%s", msg)
}
