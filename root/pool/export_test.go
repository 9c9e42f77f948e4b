package pool

import "unsafe"

func unsafePointer(c *Value) unsafe.Pointer { return unsafe.Pointer(c) }
