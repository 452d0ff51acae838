// Package mempool pools the float32 buffers that back detector input tensors.
package mempool

import "sync"

// float32Pools maps a size class (int) to its *sync.Pool.
var float32Pools sync.Map

// sizeClass rounds n up to a multiple of 1024 so similar page sizes share a pool.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return pAny.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 retrieves a []float32 buffer of length n from the pool.
// Contents are not zeroed. The caller returns it via PutFloat32 when done.
func GetFloat32(n int) []float32 {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp, ok := poolFor(cls).Get().(*[]float32)
	if !ok || cap(*bp) < cls {
		buf := make([]float32, cls)
		return buf[:n]
	}
	return (*bp)[:n]
}

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
// Buffers whose capacity is not a size class were not pooled and are dropped.
func PutFloat32(buf []float32) {
	if cap(buf) == 0 || sizeClass(cap(buf)) != cap(buf) {
		return
	}
	full := buf[:cap(buf)]
	poolFor(cap(buf)).Put(&full)
}
