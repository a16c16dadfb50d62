package encryption

import (
	"sync"
)

const defaultBufferSize = 32 * 1024

// bufferPool provides a pool of reusable read buffers.
//
//nolint:gochecknoglobals
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, defaultBufferSize)

		return &buf
	},
}

func getBuffer() []byte {
	buf, _ := bufferPool.Get().(*[]byte)

	return *buf
}

func putBuffer(buf []byte) {
	bufferPool.Put(&buf)
}
