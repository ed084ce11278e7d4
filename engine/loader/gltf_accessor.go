package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

var (
	errSparseAccessor = errors.New("sparse accessors are not supported")
	errAccessorBounds = errors.New("accessor exceeds its buffer view")
)

// gltfComponentSize returns the byte size of one component.
func gltfComponentSize(c gltf.ComponentType) int {
	switch c {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	default:
		return 0
	}
}

// gltfComponentCount returns the number of components of an element.
func gltfComponentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	default:
		return 0
	}
}

// gltfAccessorBytes returns the bytes spanning every element of an accessor and the distance between
// consecutive elements.
//
// Parameters:
//   - doc: the decoded document
//   - index: the accessor index
//
// Returns:
//   - *gltf.Accessor: the accessor
//   - []byte: the element bytes, starting at the first element
//   - int: the element stride in bytes
//   - error: when the accessor is missing, sparse or out of bounds
func gltfAccessorBytes(doc *gltf.Document, index int) (*gltf.Accessor, []byte, int, error) {
	if index < 0 || index >= len(doc.Accessors) {
		return nil, nil, 0, fmt.Errorf("accessor %d out of range", index)
	}
	acc := doc.Accessors[index]
	if acc.Sparse != nil {
		return nil, nil, 0, fmt.Errorf("accessor %d: %w", index, errSparseAccessor)
	}
	if acc.BufferView == nil || *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) {
		return nil, nil, 0, fmt.Errorf("accessor %d has no buffer view", index)
	}
	bv := doc.BufferViews[*acc.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, nil, 0, fmt.Errorf("accessor %d: buffer %d out of range", index, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data

	elemSize := gltfComponentSize(acc.ComponentType) * gltfComponentCount(acc.Type)
	if elemSize == 0 {
		return nil, nil, 0, fmt.Errorf("accessor %d: unsupported type %v/%v", index, acc.Type, acc.ComponentType)
	}
	stride := elemSize
	if bv.ByteStride > 0 {
		stride = bv.ByteStride
	}
	if acc.Count == 0 {
		return acc, nil, stride, nil
	}
	start := bv.ByteOffset + acc.ByteOffset
	end := start + (acc.Count-1)*stride + elemSize
	if end > bv.ByteOffset+bv.ByteLength || end > len(data) {
		return nil, nil, 0, fmt.Errorf("accessor %d: %w", index, errAccessorBounds)
	}
	return acc, data[start:end], stride, nil
}

// gltfReadFloats reads an accessor of the given element type as floats, count*components values.
// Float components are read as is, normalized integer components are mapped to [0, 1] or [-1, 1].
func gltfReadFloats(doc *gltf.Document, index int, want gltf.AccessorType) ([]float32, error) {
	acc, data, stride, err := gltfAccessorBytes(doc, index)
	if err != nil {
		return nil, err
	}
	if acc.Type != want {
		return nil, fmt.Errorf("accessor %d is %v, want %v", index, acc.Type, want)
	}
	if acc.ComponentType != gltf.ComponentFloat && !acc.Normalized {
		return nil, fmt.Errorf("accessor %d: %v components are not normalized", index, acc.ComponentType)
	}

	n := gltfComponentCount(acc.Type)
	size := gltfComponentSize(acc.ComponentType)
	out := make([]float32, acc.Count*n)
	for i := range acc.Count {
		elem := data[i*stride:]
		for c := range n {
			b := elem[c*size:]
			var v float32
			switch acc.ComponentType {
			case gltf.ComponentFloat:
				v = math.Float32frombits(binary.LittleEndian.Uint32(b))
			case gltf.ComponentUbyte:
				v = float32(b[0]) / 255
			case gltf.ComponentByte:
				v = max(float32(int8(b[0]))/127, -1)
			case gltf.ComponentUshort:
				v = float32(binary.LittleEndian.Uint16(b)) / 65535
			case gltf.ComponentShort:
				v = max(float32(int16(binary.LittleEndian.Uint16(b)))/32767, -1)
			default:
				return nil, fmt.Errorf("accessor %d: unsupported component type %v", index, acc.ComponentType)
			}
			out[i*n+c] = v
		}
	}
	return out, nil
}

// gltfReadVec3 reads a VEC3 accessor.
func gltfReadVec3(doc *gltf.Document, index int) ([][3]float32, error) {
	flat, err := gltfReadFloats(doc, index, gltf.AccessorVec3)
	if err != nil {
		return nil, err
	}
	out := make([][3]float32, len(flat)/3)
	for i := range out {
		out[i] = [3]float32{flat[i*3], flat[i*3+1], flat[i*3+2]}
	}
	return out, nil
}

// gltfReadVec2 reads a VEC2 accessor.
func gltfReadVec2(doc *gltf.Document, index int) ([][2]float32, error) {
	flat, err := gltfReadFloats(doc, index, gltf.AccessorVec2)
	if err != nil {
		return nil, err
	}
	out := make([][2]float32, len(flat)/2)
	for i := range out {
		out[i] = [2]float32{flat[i*2], flat[i*2+1]}
	}
	return out, nil
}

// gltfReadIndices reads a SCALAR index accessor of unsigned byte, short or int components.
func gltfReadIndices(doc *gltf.Document, index int) ([]uint32, error) {
	acc, data, stride, err := gltfAccessorBytes(doc, index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("index accessor %d is %v, want SCALAR", index, acc.Type)
	}
	out := make([]uint32, acc.Count)
	for i := range acc.Count {
		b := data[i*stride:]
		switch acc.ComponentType {
		case gltf.ComponentUbyte:
			out[i] = uint32(b[0])
		case gltf.ComponentUshort:
			out[i] = uint32(binary.LittleEndian.Uint16(b))
		case gltf.ComponentUint:
			out[i] = binary.LittleEndian.Uint32(b)
		default:
			return nil, fmt.Errorf("index accessor %d: unsupported component type %v", index, acc.ComponentType)
		}
	}
	return out, nil
}
