// Package coltype defines the scalar type system shared by the column
// store and the B+-tree index: DataType, the tagged Value it carries, and
// the fixed-width binary cell encoding of §4.3.
//
// Grounded on the teacher's approach of specializing storage per concrete
// type rather than dispatching on an interface at every cell access (see
// storage_engine/access/heapfile_manager/heap_page.go's offset-constant,
// binary.LittleEndian style); DESIGN.md's internal/coltype entry explains
// this choice of a type switch on DataType over a dynamic tagged-union
// dispatch on every cell.
package coltype

import (
	"encoding/binary"
	"fmt"
	"math"

	"colstore/internal/dberr"
)

// DataType is one of the six scalar types a Column may hold.
type DataType uint8

const (
	Int32 DataType = iota
	Int64
	Float32
	Float64
	String
	Bool
)

// StringCellWidth is the fixed on-disk width of a STRING cell (§6).
const StringCellWidth = 256

// String satisfies fmt.Stringer for logging and error messages.
func (t DataType) String() string {
	switch t {
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "FLOAT64"
	case String:
		return "STRING"
	case Bool:
		return "BOOL"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// CellSize returns the fixed on-disk width of one cell of this type.
func (t DataType) CellSize() int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	case String:
		return StringCellWidth
	case Bool:
		return 1
	default:
		panic(fmt.Sprintf("coltype: unknown DataType %d", uint8(t)))
	}
}

// Default returns the type's zero value (numeric zero, empty string, false).
func (t DataType) Default() Value {
	switch t {
	case Int32:
		return Value{typ: t, i32: 0}
	case Int64:
		return Value{typ: t, i64: 0}
	case Float32:
		return Value{typ: t, f32: 0}
	case Float64:
		return Value{typ: t, f64: 0}
	case String:
		return Value{typ: t, str: ""}
	case Bool:
		return Value{typ: t, b: false}
	default:
		panic(fmt.Sprintf("coltype: unknown DataType %d", uint8(t)))
	}
}

// Value is a tagged scalar of one of the six DataTypes. Total ordering
// (Compare) is defined only between values of the same type.
type Value struct {
	typ DataType
	i32 int32
	i64 int64
	f32 float32
	f64 float64
	str string
	b   bool
}

// Type reports the value's DataType.
func (v Value) Type() DataType { return v.typ }

func NewInt32(x int32) Value     { return Value{typ: Int32, i32: x} }
func NewInt64(x int64) Value     { return Value{typ: Int64, i64: x} }
func NewFloat32(x float32) Value { return Value{typ: Float32, f32: x} }
func NewFloat64(x float64) Value { return Value{typ: Float64, f64: x} }
func NewString(x string) Value   { return Value{typ: String, str: x} }
func NewBool(x bool) Value       { return Value{typ: Bool, b: x} }

func (v Value) Int32() int32     { return v.i32 }
func (v Value) Int64() int64     { return v.i64 }
func (v Value) Float32() float32 { return v.f32 }
func (v Value) Float64() float64 { return v.f64 }
func (v Value) String() string   { return v.str }
func (v Value) Bool() bool       { return v.b }

// AsFloat64 coerces any numeric or bool value to float64 for aggregation.
// STRING values coerce to 0, matching §4.3's "non-numeric types sum to 0".
func (v Value) AsFloat64() float64 {
	switch v.typ {
	case Int32:
		return float64(v.i32)
	case Int64:
		return float64(v.i64)
	case Float32:
		return float64(v.f32)
	case Float64:
		return v.f64
	case Bool:
		if v.b {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Compare orders two values of the same DataType: negative if v < other,
// zero if equal, positive if v > other. It panics on a type mismatch —
// callers (Column, B+-tree) must reject mismatched types before calling.
func (v Value) Compare(other Value) int {
	if v.typ != other.typ {
		panic("coltype: Compare called on values of different DataType")
	}
	switch v.typ {
	case Int32:
		return cmpInt(int64(v.i32), int64(other.i32))
	case Int64:
		return cmpInt(v.i64, other.i64)
	case Float32:
		return cmpFloat(float64(v.f32), float64(other.f32))
	case Float64:
		return cmpFloat(v.f64, other.f64)
	case String:
		switch {
		case v.str < other.str:
			return -1
		case v.str > other.str:
			return 1
		default:
			return 0
		}
	case Bool:
		bi := func(b bool) int {
			if b {
				return 1
			}
			return 0
		}
		return cmpInt(int64(bi(v.b)), int64(bi(other.b)))
	default:
		panic(fmt.Sprintf("coltype: unknown DataType %d", uint8(v.typ)))
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// EncodeCell writes v's fixed-width little-endian encoding into dst, which
// must be at least v.Type().CellSize() bytes long.
func EncodeCell(v Value, dst []byte) error {
	if v.typ.CellSize() > len(dst) {
		return fmt.Errorf("coltype: dst too small for %s cell", v.typ)
	}
	switch v.typ {
	case Int32:
		binary.LittleEndian.PutUint32(dst, uint32(v.i32))
	case Int64:
		binary.LittleEndian.PutUint64(dst, uint64(v.i64))
	case Float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v.f32))
	case Float64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v.f64))
	case String:
		for i := range dst[:StringCellWidth] {
			dst[i] = 0
		}
		b := []byte(v.str)
		if len(b) > StringCellWidth-1 {
			b = b[:StringCellWidth-1]
		}
		copy(dst, b)
	case Bool:
		if v.b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	default:
		return fmt.Errorf("coltype: unknown DataType %d", uint8(v.typ))
	}
	return nil
}

// DecodeCell reads a value of type t from src, which must be at least
// t.CellSize() bytes long.
func DecodeCell(t DataType, src []byte) (Value, error) {
	if t.CellSize() > len(src) {
		return Value{}, fmt.Errorf("coltype: src too small for %s cell", t)
	}
	switch t {
	case Int32:
		return NewInt32(int32(binary.LittleEndian.Uint32(src))), nil
	case Int64:
		return NewInt64(int64(binary.LittleEndian.Uint64(src))), nil
	case Float32:
		return NewFloat32(math.Float32frombits(binary.LittleEndian.Uint32(src))), nil
	case Float64:
		return NewFloat64(math.Float64frombits(binary.LittleEndian.Uint64(src))), nil
	case String:
		raw := src[:StringCellWidth]
		n := 0
		for n < len(raw) && raw[n] != 0 {
			n++
		}
		return NewString(string(raw[:n])), nil
	case Bool:
		return NewBool(src[0] != 0), nil
	default:
		return Value{}, fmt.Errorf("coltype: unknown DataType %d", uint8(t))
	}
}

// CheckType returns dberr.ErrTypeMismatch if v is not of type t.
func CheckType(t DataType, v Value) error {
	if v.typ != t {
		return fmt.Errorf("%w: expected %s, got %s", dberr.ErrTypeMismatch, t, v.typ)
	}
	return nil
}
