package protocol

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// FormatFrame renders a frame on one line for logs, e.g.
// "LATCH (0x83) count=3 on=[0 5 17]".
func FormatFrame(f Frame) string {
	var header string
	if len(f.Raw) > 0 {
		header = Header(f.Raw[0]).String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) count=%d", strings.ToUpper(f.Kind.String()), header, f.ByteCount)

	switch f.Kind {
	case KindLatch:
		on := make([]int, 0, len(f.Bits))
		for idx, v := range f.Bits {
			if v {
				on = append(on, idx)
			}
		}
		slices.Sort(on)
		fmt.Fprintf(&b, " on=%v", on)
	case KindSwitch:
		b.WriteString(" changed=[")
		for n, idx := range slices.Sorted(maps.Keys(f.Bits)) {
			if n > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d:%t", idx, f.Bits[idx])
		}
		b.WriteByte(']')
	}
	return b.String()
}
