package loader

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/qmuntal/gltf"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	doc *gltf.Document
	// baseDir resolves relative image URIs; empty for documents read from a stream.
	baseDir string
	// images caches decoded images by index, since materials often share them.
	images map[int]*common.TextureStagingData
}

// gltfMaterialExtractor converts glTF materials into ImportedMaterial values, decoding base color images.
type gltfMaterialExtractor interface {
	// ExtractMaterial extracts one material. An image that cannot be read or decoded is logged and marks
	// the material with TextureFailed instead of failing the import.
	//
	// Parameters:
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - ImportedMaterial: the extracted material
	//   - error: error if the index or a texture reference is out of range
	ExtractMaterial(materialIndex int) (ImportedMaterial, error)

	// ExtractAllMaterials extracts every material of the document in order.
	//
	// Returns:
	//   - []ImportedMaterial: all extracted materials
	//   - error: error if extraction fails
	ExtractAllMaterials() ([]ImportedMaterial, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a material extractor.
//
// Parameters:
//   - doc: the decoded document
//   - baseDir: directory external image URIs are relative to
//
// Returns:
//   - gltfMaterialExtractor: the material extractor
func newGLTFMaterialExtractor(doc *gltf.Document, baseDir string) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{doc: doc, baseDir: baseDir, images: make(map[int]*common.TextureStagingData)}
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (ImportedMaterial, error) {
	if materialIndex < 0 || materialIndex >= len(e.doc.Materials) {
		return ImportedMaterial{}, fmt.Errorf("material index %d out of range", materialIndex)
	}
	mat := e.doc.Materials[materialIndex]

	result := ImportedMaterial{
		Name:        mat.Name,
		BaseColor:   [4]float32{1, 1, 1, 1},
		Blend:       mat.AlphaMode == gltf.AlphaBlend,
		DoubleSided: mat.DoubleSided,
	}
	if result.Name == "" {
		result.Name = fmt.Sprintf("material_%d", materialIndex)
	}

	pbr := mat.PBRMetallicRoughness
	if pbr == nil {
		return result, nil
	}
	if pbr.BaseColorFactor != nil {
		for i, v := range *pbr.BaseColorFactor {
			result.BaseColor[i] = float32(v)
		}
	}
	if pbr.BaseColorTexture != nil {
		tex, err := e.loadTexture(pbr.BaseColorTexture.Index)
		if err != nil {
			return ImportedMaterial{}, fmt.Errorf("material %q: base color texture: %w", result.Name, err)
		}
		result.BaseColorTexture = tex
		result.TextureFailed = tex == nil
	}
	return result, nil
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials() ([]ImportedMaterial, error) {
	materials := make([]ImportedMaterial, len(e.doc.Materials))
	for i := range e.doc.Materials {
		mat, err := e.ExtractMaterial(i)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		materials[i] = mat
	}
	return materials, nil
}

// loadTexture resolves a texture index to decoded pixels. A texture without an image source, or an image
// whose bytes cannot be read or decoded, returns nil and no error after logging a warning.
func (e *gltfMaterialExtractorImpl) loadTexture(textureIndex int) (*common.TextureStagingData, error) {
	if textureIndex < 0 || textureIndex >= len(e.doc.Textures) {
		return nil, fmt.Errorf("texture index %d out of range", textureIndex)
	}
	tex := e.doc.Textures[textureIndex]
	if tex.Source == nil {
		return nil, nil
	}
	imageIndex := *tex.Source
	if imageIndex < 0 || imageIndex >= len(e.doc.Images) {
		return nil, fmt.Errorf("image index %d out of range", imageIndex)
	}
	if cached, ok := e.images[imageIndex]; ok {
		return cached, nil
	}

	decoded, err := e.decodeImage(e.doc.Images[imageIndex])
	if err != nil {
		common.Logger().Warn("model image unusable, using fallback", "image", imageIndex, "err", err)
		decoded = nil
	}
	e.images[imageIndex] = decoded
	return decoded, nil
}

// decodeImage reads an image from a buffer view, a data URI or a file next to the document.
func (e *gltfMaterialExtractorImpl) decodeImage(img *gltf.Image) (*common.TextureStagingData, error) {
	var data []byte
	var err error
	switch {
	case img.BufferView != nil:
		data, err = e.readBufferViewRaw(*img.BufferView)
	case strings.HasPrefix(img.URI, "data:"):
		data, err = gltfDecodeDataURI(img.URI)
	case img.URI != "":
		if e.baseDir == "" {
			return nil, fmt.Errorf("external image %q without a base directory", img.URI)
		}
		data, err = os.ReadFile(filepath.Join(e.baseDir, filepath.FromSlash(img.URI)))
	default:
		return nil, fmt.Errorf("image %q has no data", img.Name)
	}
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %q: %w", img.Name, err)
	}
	rgba := renderer.ToRGBA(src)
	return &common.TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(rgba.Bounds().Dx()),
		Height: uint32(rgba.Bounds().Dy()),
	}, nil
}

// readBufferViewRaw returns the bytes of a buffer view; image data is not described by an accessor.
func (e *gltfMaterialExtractorImpl) readBufferViewRaw(bufferViewIndex int) ([]byte, error) {
	if bufferViewIndex < 0 || bufferViewIndex >= len(e.doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", bufferViewIndex)
	}
	bv := e.doc.BufferViews[bufferViewIndex]
	if bv.Buffer < 0 || bv.Buffer >= len(e.doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	buf := e.doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if end > len(buf) {
		return nil, fmt.Errorf("bufferView exceeds buffer bounds: offset=%d length=%d bufSize=%d", bv.ByteOffset, bv.ByteLength, len(buf))
	}
	return buf[bv.ByteOffset:end], nil
}

// gltfDecodeDataURI decodes a base64 data URI: data:[<mediatype>];base64,<data>.
func gltfDecodeDataURI(uri string) ([]byte, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI: no comma found")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding %q", header)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, nil
}
