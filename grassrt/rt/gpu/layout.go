package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/grass/grassrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// InstanceStride is the byte size of one packed blade record.
	InstanceStride = 64
	// ReservedPrefixBytes of zeros start every instance buffer, so a read
	// through an untagged (zero) metadata offset returns zero.
	ReservedPrefixBytes = 64
	// PerInstanceFlag tags a metadata value as a per-instance array address.
	PerInstanceFlag uint32 = 0x80000000
	// ElementSize is the addressing unit of instance buffers.
	ElementSize = 4
)

// PropertyID identifies a per-blade property in the metadata table. The
// values are part of the shader contract and never renumbered.
type PropertyID uint32

const (
	PropPosition PropertyID = iota + 1
	PropFacingAngle
	PropHeight
	PropWidth
	PropCurvatureStrength
	PropLean
	PropShapeProfileID
	PropColorVariationSeed
	PropBladeHash
	PropStiffness
	PropWindPhaseOffset
	PropWindStrengthMultiplier
)

// Field describes one property's place inside a blade record.
type Field struct {
	ID     PropertyID
	Name   string
	Size   int
	Offset int
}

// MetadataEntry pairs a property with PerInstanceFlag | byte address of
// instance 0's value. Instance n's value lives at address + n*InstanceStride.
type MetadataEntry struct {
	Property PropertyID
	Value    uint32
}

type MetadataTable []MetadataEntry

// Lookup returns the tagged value for a property.
func (t MetadataTable) Lookup(id PropertyID) (uint32, bool) {
	for _, e := range t {
		if e.Property == id {
			return e.Value, true
		}
	}
	return 0, false
}

// Address strips the per-instance tag from a metadata value.
func Address(value uint32) uint32 {
	return value &^ PerInstanceFlag
}

var recordFields = buildLayout([]Field{
	{ID: PropPosition, Name: "position", Size: 12},
	{ID: PropFacingAngle, Name: "facingAngle", Size: 4},
	{ID: PropHeight, Name: "height", Size: 4},
	{ID: PropWidth, Name: "width", Size: 4},
	{ID: PropCurvatureStrength, Name: "curvatureStrength", Size: 4},
	{ID: PropLean, Name: "lean", Size: 4},
	{ID: PropShapeProfileID, Name: "shapeProfileID", Size: 4},
	{ID: PropColorVariationSeed, Name: "colorVariationSeed", Size: 4},
	{ID: PropBladeHash, Name: "bladeHash", Size: 4},
	{ID: PropStiffness, Name: "stiffness", Size: 4},
	{ID: PropWindPhaseOffset, Name: "windPhaseOffset", Size: 4},
	{ID: PropWindStrengthMultiplier, Name: "windStrengthMultiplier", Size: 4},
})

var metadata = buildMetadata()

var fieldOffsets = func() (o [PropWindStrengthMultiplier + 1]int) {
	for _, f := range recordFields {
		o[f.ID] = f.Offset
	}
	return o
}()

// buildLayout accumulates offsets in declaration order. The field after the
// leading vec3 position starts on a 16-byte boundary.
func buildLayout(fields []Field) []Field {
	offset := 0
	for i := range fields {
		if i == 1 {
			offset = alignUp(offset, 16)
		}
		fields[i].Offset = offset
		offset += fields[i].Size
	}
	if offset > InstanceStride {
		panic(fmt.Sprintf("gpu: blade record needs %d bytes, stride is %d", offset, InstanceStride))
	}
	return fields
}

func buildMetadata() MetadataTable {
	t := make(MetadataTable, len(recordFields))
	for i, f := range recordFields {
		t[i] = MetadataEntry{
			Property: f.ID,
			Value:    PerInstanceFlag | uint32(ReservedPrefixBytes+f.Offset),
		}
	}
	return t
}

// Fields returns the record layout.
func Fields() []Field {
	return append([]Field(nil), recordFields...)
}

// FieldOffset returns a property's byte offset inside a record.
func FieldOffset(id PropertyID) int {
	if id == 0 || int(id) >= len(fieldOffsets) {
		panic(fmt.Sprintf("gpu: unknown property %d", id))
	}
	return fieldOffsets[id]
}

// Metadata returns a copy of the shared metadata table. The table does not
// depend on the instance count.
func Metadata() MetadataTable {
	return append(MetadataTable(nil), metadata...)
}

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}

// BufferElementCount sizes an instance buffer in 4-byte elements: the
// per-instance size and the extra header bytes are each rounded up to a
// multiple of 4 before totalling.
func BufferElementCount(bytesPerInstance, numInstances, extraBytes int) int {
	total := alignUp(bytesPerInstance, ElementSize)*numInstances + alignUp(extraBytes, ElementSize)
	return total / ElementSize
}

// Build packs blades into the instance buffer layout: a zero prefix block
// followed by one record per blade at ReservedPrefixBytes + i*InstanceStride.
func Build(params []core.BladeParams) ([]byte, MetadataTable) {
	buf := make([]byte, BufferElementCount(InstanceStride, len(params), ReservedPrefixBytes)*ElementSize)
	for i := range params {
		writeRecord(buf[ReservedPrefixBytes+i*InstanceStride:], &params[i])
	}
	return buf, Metadata()
}

func writeRecord(rec []byte, b *core.BladeParams) {
	putF32 := func(id PropertyID, v float32) {
		binary.LittleEndian.PutUint32(rec[FieldOffset(id):], math.Float32bits(v))
	}

	pos := FieldOffset(PropPosition)
	binary.LittleEndian.PutUint32(rec[pos:], math.Float32bits(b.Position[0]))
	binary.LittleEndian.PutUint32(rec[pos+4:], math.Float32bits(b.Position[1]))
	binary.LittleEndian.PutUint32(rec[pos+8:], math.Float32bits(b.Position[2]))

	putF32(PropFacingAngle, b.FacingAngle)
	putF32(PropHeight, b.Height)
	putF32(PropWidth, b.Width)
	putF32(PropCurvatureStrength, b.CurvatureStrength)
	putF32(PropLean, b.Lean)
	binary.LittleEndian.PutUint32(rec[FieldOffset(PropShapeProfileID):], uint32(b.ShapeProfileID))
	putF32(PropColorVariationSeed, b.ColorVariationSeed)
	putF32(PropBladeHash, b.BladeHash)
	putF32(PropStiffness, b.Stiffness)
	putF32(PropWindPhaseOffset, b.WindPhaseOffset)
	putF32(PropWindStrengthMultiplier, b.WindStrengthMultiplier)
}

// ReadFloat reads instance i's property through a metadata value, the way
// the shader addresses the buffer.
func ReadFloat(buf []byte, value uint32, i int) float32 {
	at := int(Address(value)) + i*InstanceStride
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[at:]))
}

// DecodeBlade unpacks record i of a built buffer.
func DecodeBlade(buf []byte, i int) core.BladeParams {
	rec := buf[ReservedPrefixBytes+i*InstanceStride:]
	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))
	}
	pos := FieldOffset(PropPosition)
	return core.BladeParams{
		Position:               mgl32.Vec3{f32(pos), f32(pos + 4), f32(pos + 8)},
		FacingAngle:            f32(FieldOffset(PropFacingAngle)),
		Height:                 f32(FieldOffset(PropHeight)),
		Width:                  f32(FieldOffset(PropWidth)),
		CurvatureStrength:      f32(FieldOffset(PropCurvatureStrength)),
		Lean:                   f32(FieldOffset(PropLean)),
		ShapeProfileID:         int32(binary.LittleEndian.Uint32(rec[FieldOffset(PropShapeProfileID):])),
		ColorVariationSeed:     f32(FieldOffset(PropColorVariationSeed)),
		BladeHash:              f32(FieldOffset(PropBladeHash)),
		Stiffness:              f32(FieldOffset(PropStiffness)),
		WindPhaseOffset:        f32(FieldOffset(PropWindPhaseOffset)),
		WindStrengthMultiplier: f32(FieldOffset(PropWindStrengthMultiplier)),
	}
}

// MetadataSlots is the number of u32 slots in the packed metadata block the
// shader reads. Slot k holds the value for PropertyID k; slot 0 stays zero.
const MetadataSlots = 16

// PackMetadata lays a metadata table out as the uniform block bound next to
// each instance buffer.
func PackMetadata(meta MetadataTable) []byte {
	out := make([]byte, MetadataSlots*4)
	for _, e := range meta {
		if e.Property == 0 || int(e.Property) >= MetadataSlots {
			panic(fmt.Sprintf("gpu: property %d has no metadata slot", e.Property))
		}
		binary.LittleEndian.PutUint32(out[int(e.Property)*4:], e.Value)
	}
	return out
}
