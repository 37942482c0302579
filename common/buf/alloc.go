package buf

// Size classes follow https://github.com/xtaci/smux/blob/master/alloc.go

import (
	"math/bits"
	"sync"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

const (
	minClassBits = 6
	maxClassBits = 16

	// MaxPooledSize is the largest slice served from a pool; larger requests are
	// allocated directly.
	MaxPooledSize = 1 << maxClassBits
)

var pools [maxClassBits - minClassBits + 1]sync.Pool

func init() {
	for index := range pools {
		size := 1 << (index + minClassBits)
		pools[index].New = func() any {
			buffer := make([]byte, size)
			return &buffer
		}
	}
}

// Get returns a slice of length size whose capacity is the next power of two.
func Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > MaxPooledSize {
		return make([]byte, size)
	}
	buffer := *pools[class(size)].Get().(*[]byte)
	return buffer[:size]
}

// Put returns a slice obtained from Get. The capacity must be exactly 2^n.
func Put(buffer []byte) error {
	capacity := cap(buffer)
	if capacity < 1<<minClassBits || capacity > MaxPooledSize || capacity&(capacity-1) != 0 {
		return E.New("buf: put incorrect buffer size ", capacity)
	}
	buffer = buffer[:capacity]
	pools[class(capacity)].Put(&buffer)
	return nil
}

func class(size int) int {
	if size <= 1<<minClassBits {
		return 0
	}
	return bits.Len(uint(size-1)) - minClassBits
}
