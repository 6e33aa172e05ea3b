package ccd

import (
	"encoding/binary"
	"math/bits"
)

// bitset is a set of taxa, bit i is the taxon with index i.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << uint(i%64)
}

func (b bitset) or(o bitset) {
	for i := range b {
		b[i] |= o[i]
	}
}

func (b bitset) count() (n int) {
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return
}

// members returns indices of the set bits.
func (b bitset) members() []int {
	res := make([]int, 0, b.count())
	for i, w := range b {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			res = append(res, i*64+j)
			w &^= 1 << uint(j)
		}
	}
	return res
}

// key returns a string usable as a map key.
func (b bitset) key() string {
	buf := make([]byte, 8*len(b))
	for i, w := range b {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return string(buf)
}

func fromKey(k string) bitset {
	b := make(bitset, len(k)/8)
	for i := range b {
		b[i] = binary.LittleEndian.Uint64([]byte(k[i*8 : i*8+8]))
	}
	return b
}
