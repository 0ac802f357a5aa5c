package engine

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/riptide-sim/riptide"
	"github.com/riptide-sim/riptide/errors"
)

// Memory wraps wazero linear memory with bounds-checked accessors.
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(offset, length, m.mem.Size())
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

func (m *Memory) ReadUint32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(offset, 4, m.mem.Size())
	}
	return val, nil
}

func (m *Memory) WriteUint32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(offset, 4, m.mem.Size())
	}
	return nil
}

// ReadFloat64s decodes count little-endian doubles starting at offset
// into out. The slice length bounds the copy.
func (m *Memory) ReadFloat64s(offset uint32, out []float64) error {
	data, err := m.Read(offset, uint32(len(out))*8)
	if err != nil {
		return err
	}
	for i := range out {
		bits := binary.LittleEndian.Uint64(data[i*8:])
		out[i] = math.Float64frombits(bits)
	}
	return nil
}

// WriteFloat64s encodes values as little-endian doubles at offset.
func (m *Memory) WriteFloat64s(offset uint32, values []float64) error {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return m.Write(offset, buf)
}

// ReadCString reads a NUL-terminated string starting at offset.
func (m *Memory) ReadCString(offset uint32) (string, error) {
	const chunk = 256
	var out []byte
	for {
		length := uint32(chunk)
		if size := m.mem.Size(); offset+length > size {
			if offset >= size {
				return "", errors.OutOfBounds(offset, 1, size)
			}
			length = size - offset
		}
		data, err := m.Read(offset, length)
		if err != nil {
			return "", err
		}
		for i, b := range data {
			if b == 0 {
				return string(append(out, data[:i]...)), nil
			}
		}
		out = append(out, data...)
		offset += length
		if length < chunk {
			return string(out), nil
		}
	}
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Compile-time check that Memory implements riptide.Memory
var _ riptide.Memory = (*Memory)(nil)
