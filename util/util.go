package util

import (
	"log"
)

// Debug is the global verbosity level; higher prints more. Set from the
// -debug flag before the kernel starts.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

func Min(n uint64, m uint64) uint64 {
	var r uint64
	if n < m {
		r = n
	} else {
		r = m
	}
	return r
}

// DivRoundUp is ceil(n / sz) for positive sz.
func DivRoundUp(n int, sz int) int {
	return (n + sz - 1) / sz
}
