package native

/*
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"

	"github.com/gomlx/goxrt/xrt"
)

// File implements the cgo helper utilities used by the native backend.

// cFree calls C.free() on the unsafe.Pointer version of data.
func cFree[T any](data *T) {
	C.free(unsafe.Pointer(data))
}

// cDataToSlice converts a C pointer to C allocated array of type T with count elements and return an unsafe
// slice to the data.
func cDataToSlice[T any](data unsafe.Pointer, count int) (result []T) {
	if data == nil || count == 0 {
		return nil
	}
	return unsafe.Slice((*T)(data), count)
}

// cStrFree converts the allocated C string (char *) to a Go `string` and
// frees the C string immediately.
func cStrFree(cstr *C.char) (str string) {
	if cstr == nil {
		return ""
	}
	str = C.GoString(cstr)
	C.free(unsafe.Pointer(cstr))
	return
}

// cGoString converts a C string owned by C to a Go `string` (copied). Nil pointers become empty strings.
func cGoString(cstr *C.char) string {
	if cstr == nil {
		return ""
	}
	return C.GoString(cstr)
}

// uuidBuffer is a Go buffer for the runtime to write an identifier into.
type uuidBuffer [xrt.UUIDSize]C.uchar

// ptr returns the pointer to pass to C.
func (b *uuidBuffer) ptr() *C.uchar {
	return &b[0]
}

// UUID copies the identifier byte-for-byte, with a checked conversion.
func (b *uuidBuffer) UUID() (xrt.UUID, error) {
	return xrt.UUIDFromBytes(C.GoBytes(unsafe.Pointer(&b[0]), C.int(len(b))))
}

// cUUID copies the identifier to a C array, to be freed with cFree.
func cUUID(u xrt.UUID) *C.uchar {
	ptr := (*C.uchar)(C.malloc(C.size_t(xrt.UUIDSize)))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), xrt.UUIDSize), u[:])
	return ptr
}
