package capi

import "unsafe"

// GoString copies a NUL-terminated engine string into a Go string. A nil
// pointer yields "". The engine buffer is left untouched.
func GoString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice(p, n))
}

// CString renders s as a NUL-terminated byte buffer for boundary calls.
// Callers pass &buf[0] and keep the buffer alive across the call.
func CString(s string) []byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf
}
