package eosio

import (
	"bytes"
	"encoding/binary"
)

// Encoder writes the little-endian binary layout used by the chain ABI.
type Encoder struct {
	buf bytes.Buffer
	err error
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) Err() error {
	return e.err
}

func (e *Encoder) Raw(b []byte) {
	e.buf.Write(b)
}

func (e *Encoder) Uint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

func (e *Encoder) Varuint32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		e.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func (e *Encoder) ByteSlice(b []byte) {
	e.Varuint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *Encoder) String(s string) {
	e.ByteSlice([]byte(s))
}

// Name packs an account or action name. The first invalid name sticks in Err.
func (e *Encoder) Name(name string) {
	v, err := NameToUint64(name)
	if err != nil && e.err == nil {
		e.err = err
	}
	e.Uint64(v)
}

func (e *Encoder) Asset(a Asset) {
	e.Int64(a.Amount)
	e.Uint64(a.Symbol.Uint64())
}
