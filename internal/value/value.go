// Package value holds the typed value containers stored in property
// states: the repository scalar types and the InternalValue variant that
// carries one of them.
package value

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"jcrcore/internal/itemid"
)

// Type is one of the repository's scalar property types.
type Type int

// Repository scalar types. REFERENCE carries special commit-time
// semantics (see internal/manager); the rest are opaque payloads to the
// manager at commit time.
const (
	TypeUndefined Type = iota
	TypeString
	TypeBinary
	TypeLong
	TypeDouble
	TypeDate
	TypeBoolean
	TypeName
	TypePath
	TypeReference
	TypeDecimal
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "STRING"
	case TypeBinary:
		return "BINARY"
	case TypeLong:
		return "LONG"
	case TypeDouble:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeName:
		return "NAME"
	case TypePath:
		return "PATH"
	case TypeReference:
		return "REFERENCE"
	case TypeDecimal:
		return "DECIMAL"
	default:
		return "UNDEFINED"
	}
}

// BlobRef points at a BINARY payload held by an internal/blobstore backend
// rather than inlined into the value itself. Payloads at or below the
// configured inline threshold are carried directly in InternalValue.Bytes
// instead, and BlobRef is the zero value in that case.
type BlobRef struct {
	Key  string
	Size int64
}

// InternalValue is a single scalar value of one repository type. Exactly
// one of the typed fields is meaningful, selected by Type.
type InternalValue struct {
	Type Type

	Str     string
	Bytes   []byte
	Long    int64
	Double  float64
	Date    time.Time
	Bool    bool
	Name    itemid.QName
	Path    []itemid.QName
	Ref     uuid.UUID
	Decimal string // exact decimal lexical form; no fixed-point arithmetic is performed at this layer

	Blob BlobRef // valid only when Type == TypeBinary and Bytes is empty
}

// NewString constructs a STRING value.
func NewString(s string) InternalValue { return InternalValue{Type: TypeString, Str: s} }

// NewName constructs a NAME value.
func NewName(n itemid.QName) InternalValue { return InternalValue{Type: TypeName, Name: n} }

// NewReference constructs a REFERENCE value targeting the given node UUID.
func NewReference(target uuid.UUID) InternalValue {
	return InternalValue{Type: TypeReference, Ref: target}
}

// NewBoolean constructs a BOOLEAN value.
func NewBoolean(b bool) InternalValue { return InternalValue{Type: TypeBoolean, Bool: b} }

// NewLong constructs a LONG value.
func NewLong(n int64) InternalValue { return InternalValue{Type: TypeLong, Long: n} }

// NewBinaryInline constructs a BINARY value carrying its payload inline.
func NewBinaryInline(b []byte) InternalValue {
	cp := make([]byte, len(b))
	copy(cp, b)
	return InternalValue{Type: TypeBinary, Bytes: cp}
}

// NewBinaryRef constructs a BINARY value whose payload lives in a blob
// store, identified by ref.
func NewBinaryRef(ref BlobRef) InternalValue {
	return InternalValue{Type: TypeBinary, Blob: ref}
}

// Clone returns a deep copy so that pushing a transient value into shared
// state never aliases backing slices.
func (v InternalValue) Clone() InternalValue {
	cp := v
	if v.Bytes != nil {
		cp.Bytes = make([]byte, len(v.Bytes))
		copy(cp.Bytes, v.Bytes)
	}
	if v.Path != nil {
		cp.Path = append([]itemid.QName(nil), v.Path...)
	}
	return cp
}

// Equal reports value equality for the fields meaningful to Type.
func (v InternalValue) Equal(other InternalValue) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeString:
		return v.Str == other.Str
	case TypeBinary:
		if v.Blob.Key != "" || other.Blob.Key != "" {
			return v.Blob == other.Blob
		}
		return string(v.Bytes) == string(other.Bytes)
	case TypeLong:
		return v.Long == other.Long
	case TypeDouble:
		return v.Double == other.Double
	case TypeDate:
		return v.Date.Equal(other.Date)
	case TypeBoolean:
		return v.Bool == other.Bool
	case TypeName:
		return v.Name == other.Name
	case TypePath:
		return pathEqual(v.Path, other.Path)
	case TypeReference:
		return v.Ref == other.Ref
	case TypeDecimal:
		return v.Decimal == other.Decimal
	default:
		return true
	}
}

func pathEqual(a, b []itemid.QName) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders the value for diagnostics only.
func (v InternalValue) String() string {
	return fmt.Sprintf("%s(%v)", v.Type, v.renderPayload())
}

func (v InternalValue) renderPayload() any {
	switch v.Type {
	case TypeString:
		return v.Str
	case TypeBinary:
		if v.Blob.Key != "" {
			return v.Blob
		}
		return fmt.Sprintf("%d bytes", len(v.Bytes))
	case TypeLong:
		return v.Long
	case TypeDouble:
		return v.Double
	case TypeDate:
		return v.Date
	case TypeBoolean:
		return v.Bool
	case TypeName:
		return v.Name
	case TypeReference:
		return v.Ref
	default:
		return nil
	}
}
