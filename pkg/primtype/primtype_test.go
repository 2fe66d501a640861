package primtype

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		typ  string
		size int
		want Kind
	}{
		{"unsigned char", 1, KindUint8},
		{"char", 1, KindInt8},
		{"signed char", 1, KindInt8},
		{"bool", 1, KindUint8},

		{"short", 2, KindInt16},
		{"short int", 2, KindInt16},
		{"signed short int", 2, KindInt16},
		{"unsigned short", 2, KindUint16},
		{"short unsigned int", 2, KindUint16},

		// int narrows to 16 bit on targets that measure it at two bytes.
		{"int", 2, KindInt16},
		{"int", 4, KindInt32},
		{"signed int", 4, KindInt32},
		{"unsigned int", 2, KindUint16},
		{"unsigned int", 4, KindUint32},
		{"unsigned", 4, KindUint32},

		{"long", 4, KindInt32},
		{"long int", 4, KindInt32},
		{"unsigned long", 4, KindUint32},
		{"long unsigned int", 4, KindUint32},
		{"long long", 8, KindInt64},
		{"long long int", 8, KindInt64},
		{"unsigned long long", 8, KindUint64},
		{"long long unsigned int", 8, KindUint64},

		{"float", 4, KindFloat},
		{"double", 8, KindDouble},

		// Pointers classify by the measured pointer width.
		{"char *", 4, KindUint32},
		{"void *", 4, KindUint32},
		{"unsigned char *", 2, KindUint16},
		{"struct config *", 2, KindUint16},
		{"int *", 1, KindUint8},
		{"int **", 4, KindUint32},

		// Enums classify by storage width.
		{"enum state", 2, KindInt16},
		{"enum state", 4, KindInt16},
		{"enum flags", 1, KindInt8},

		// Storage qualifiers are ignored in any order.
		{"const int", 4, KindInt32},
		{"volatile unsigned char", 1, KindUint8},
		{"static volatile const unsigned short", 2, KindUint16},
		{"extern long", 4, KindInt32},

		{"struct config", 12, KindUnknown},
		{"union overlay", 4, KindUnknown},
		{"some_typedef", 4, KindUnknown},
		{"", 0, KindUnknown},
	}

	for _, tc := range cases {
		got := Classify(tc.typ, tc.size)
		if got != tc.want {
			t.Errorf("Classify(%q, %d) = %v, want %v", tc.typ, tc.size, got, tc.want)
		}
	}
}

func TestKindString(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindUint8, "uint8"},
		{KindInt16, "int16"},
		{KindUint32, "uint32"},
		{KindInt64, "int64"},
		{KindFloat, "float"},
		{KindDouble, "double"},
		{Kind(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tc.kind), got, tc.want)
		}
	}
}

func TestKindSize(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindUint8, 1},
		{KindInt8, 1},
		{KindUint16, 2},
		{KindInt32, 4},
		{KindFloat, 4},
		{KindUint64, 8},
		{KindDouble, 8},
		{KindUnknown, 0},
	}
	for _, tc := range cases {
		if got := tc.kind.Size(); got != tc.want {
			t.Errorf("Kind %v Size() = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
