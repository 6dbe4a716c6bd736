package gguf

import (
	"fmt"
	"strconv"
)

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// TensorType is the quantization code stored in a tensor descriptor.
type TensorType uint32

// Codes 4 and 5 are reserved.
const (
	GGMLTypeF32  TensorType = 0
	GGMLTypeF16  TensorType = 1
	GGMLTypeQ4_0 TensorType = 2
	GGMLTypeQ4_1 TensorType = 3
	GGMLTypeQ5_0 TensorType = 6
	GGMLTypeQ5_1 TensorType = 7
	GGMLTypeQ8_0 TensorType = 8
	GGMLTypeQ8_1 TensorType = 9
	GGMLTypeQ2_K TensorType = 10
	GGMLTypeQ3_K TensorType = 11
	GGMLTypeQ4_K TensorType = 12
	GGMLTypeQ5_K TensorType = 13
	GGMLTypeQ6_K TensorType = 14
	GGMLTypeQ8_K TensorType = 15
	GGMLTypeI8   TensorType = 16
	GGMLTypeI16  TensorType = 17
	GGMLTypeI32  TensorType = 18
)

var tensorTypeByName = map[string]TensorType{
	"F32":  GGMLTypeF32,
	"F16":  GGMLTypeF16,
	"Q4_0": GGMLTypeQ4_0,
	"Q4_1": GGMLTypeQ4_1,
	"Q5_0": GGMLTypeQ5_0,
	"Q5_1": GGMLTypeQ5_1,
	"Q8_0": GGMLTypeQ8_0,
	"Q8_1": GGMLTypeQ8_1,
	"Q2_K": GGMLTypeQ2_K,
	"Q3_K": GGMLTypeQ3_K,
	"Q4_K": GGMLTypeQ4_K,
	"Q5_K": GGMLTypeQ5_K,
	"Q6_K": GGMLTypeQ6_K,
	"Q8_K": GGMLTypeQ8_K,
	"I8":   GGMLTypeI8,
	"I16":  GGMLTypeI16,
	"I32":  GGMLTypeI32,
}

// tensorTypeNames is the reverse of tensorTypeByName.
var tensorTypeNames = func() map[TensorType]string {
	out := make(map[TensorType]string, len(tensorTypeByName))
	for name, t := range tensorTypeByName {
		out[t] = name
	}
	return out
}()

// Name returns the enum name of the code, e.g. "Q4_K".
func (t TensorType) Name() (string, bool) {
	name, ok := tensorTypeNames[t]
	return name, ok
}

// String returns the enum name, or the decimal code when it is unknown.
func (t TensorType) String() string {
	if name, ok := t.Name(); ok {
		return name
	}
	return strconv.FormatUint(uint64(t), 10)
}

// ParseTensorType looks up a quantization type by enum name.
func ParseTensorType(name string) (TensorType, bool) {
	t, ok := tensorTypeByName[name]
	return t, ok
}
