// Package primtype maps the type spellings printed by a debugger to the
// fixed set of primitive storage kinds a target variable can occupy.
package primtype

import "strings"

// Kind is the primitive storage class of a variable on the target.
type Kind int

const (
	// KindUnknown marks a spelling the classifier does not recognize.
	KindUnknown Kind = iota
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindUint64
	KindInt64
	KindFloat
	KindDouble
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindUint8:   "uint8",
	KindInt8:    "int8",
	KindUint16:  "uint16",
	KindInt16:   "int16",
	KindUint32:  "uint32",
	KindInt32:   "int32",
	KindUint64:  "uint64",
	KindInt64:   "int64",
	KindFloat:   "float",
	KindDouble:  "double",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Size returns the number of bytes a value of this kind occupies on the
// target, 0 for KindUnknown.
func (k Kind) Size() int {
	switch k {
	case KindUint8, KindInt8:
		return 1
	case KindUint16, KindInt16:
		return 2
	case KindUint32, KindInt32, KindFloat:
		return 4
	case KindUint64, KindInt64, KindDouble:
		return 8
	}
	return 0
}

var qualifiers = []string{"extern ", "static ", "volatile ", "const "}

func stripQualifiers(typ string) string {
	typ = strings.TrimSpace(typ)
	for {
		stripped := false
		for _, q := range qualifiers {
			if strings.HasPrefix(typ, q) {
				typ = strings.TrimSpace(typ[len(q):])
				stripped = true
			}
		}
		if !stripped {
			return typ
		}
	}
}

// Classify maps a leaf type spelling and its measured size in bytes to a
// storage kind. Pointers classify by the measured pointer width, enums by
// their storage width, everything else by spelling with the measured size
// disambiguating targets where int is 16 bit. Unrecognized spellings
// classify as KindUnknown.
func Classify(typ string, size int) Kind {
	typ = stripQualifiers(typ)

	if strings.Contains(typ, "*") {
		switch size {
		case 1:
			return KindUint8
		case 4:
			return KindUint32
		default:
			return KindUint16
		}
	}

	if strings.HasPrefix(typ, "enum") {
		if size == 1 {
			return KindInt8
		}
		return KindInt16
	}

	switch typ {
	case "bool", "unsigned char":
		return KindUint8
	case "char", "signed char":
		return KindInt8
	case "unsigned short", "unsigned short int", "short unsigned int":
		return KindUint16
	case "short", "short int", "signed short", "signed short int":
		return KindInt16
	case "unsigned", "unsigned int":
		if size == 2 {
			return KindUint16
		}
		return KindUint32
	case "int", "signed", "signed int":
		if size == 2 {
			return KindInt16
		}
		return KindInt32
	case "unsigned long", "unsigned long int", "long unsigned int":
		return KindUint32
	case "long", "long int", "signed long", "signed long int":
		return KindInt32
	case "unsigned long long", "unsigned long long int", "long long unsigned int":
		return KindUint64
	case "long long", "long long int", "signed long long", "signed long long int":
		return KindInt64
	case "float":
		return KindFloat
	case "double":
		return KindDouble
	}
	return KindUnknown
}
