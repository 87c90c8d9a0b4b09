package ring

import "unsafe"

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func alignUp(p uintptr, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}
