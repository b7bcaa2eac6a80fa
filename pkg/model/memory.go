package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidMemoryType  = goerr.New("invalid memory type")
	ErrInvalidMemoryValue = goerr.New("memory value must be a string, number or boolean")
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

type MemoryType string

const (
	MemoryTypeVendorPreference  MemoryType = "vendor-preference"
	MemoryTypeCorrectionPattern MemoryType = "correction-pattern"
	MemoryTypeFieldMapping      MemoryType = "field-mapping"
	MemoryTypeResolutionHistory MemoryType = "resolution-history"
)

// Validate checks if the memory type is valid
func (t MemoryType) Validate() error {
	switch t {
	case MemoryTypeVendorPreference, MemoryTypeCorrectionPattern, MemoryTypeFieldMapping, MemoryTypeResolutionHistory:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMemoryType, "unknown type", goerr.Value("type", t))
	}
}

type ValueKind string

const (
	ValueKindString ValueKind = "string"
	ValueKindNumber ValueKind = "number"
	ValueKindBool   ValueKind = "bool"
)

// MemoryValue is the polymorphic payload of a memory entry. The persisted
// form is the bare JSON scalar (string, number or boolean); the kind tag
// lives only in process.
type MemoryValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) MemoryValue {
	return MemoryValue{Kind: ValueKindString, Str: s}
}

func NumberValue(n float64) MemoryValue {
	return MemoryValue{Kind: ValueKindNumber, Num: n}
}

func BoolValue(b bool) MemoryValue {
	return MemoryValue{Kind: ValueKindBool, Bool: b}
}

// ParseMemoryValue interprets a CLI argument as the most specific scalar
// kind: boolean, then number, then plain string.
func ParseMemoryValue(s string) MemoryValue {
	switch s {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(n)
	}
	return StringValue(s)
}

// IsString reports whether the value is the given string.
func (v MemoryValue) IsString(s string) bool {
	return v.Kind == ValueKindString && v.Str == s
}

// IsTrue reports whether the value is the boolean true.
func (v MemoryValue) IsTrue() bool {
	return v.Kind == ValueKindBool && v.Bool
}

// Number returns the numeric payload, or 0 for non-numeric values.
func (v MemoryValue) Number() float64 {
	if v.Kind == ValueKindNumber {
		return v.Num
	}
	return 0
}

// String renders the payload for human-readable corrections and logs.
func (v MemoryValue) String() string {
	switch v.Kind {
	case ValueKindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueKindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

func (v MemoryValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueKindNumber:
		return json.Marshal(v.Num)
	case ValueKindBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *MemoryValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to parse memory value")
	}

	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return goerr.Wrap(ErrInvalidMemoryValue, "unsupported payload", goerr.Value("raw", string(data)))
	}
	return nil
}

// MemoryEntry is one learned rule. The (VendorName, MemoryType, Key) triple
// is unique within a store; a repeated learn updates the existing entry.
type MemoryEntry struct {
	ID           MemoryID    `json:"id"`
	VendorName   string      `json:"vendorName"`
	MemoryType   MemoryType  `json:"memoryType"`
	Key          string      `json:"key"`
	Value        MemoryValue `json:"value"`
	Confidence   float64     `json:"confidence"`
	LastUsed     time.Time   `json:"lastUsed"`
	UsageCount   int         `json:"usageCount"`
	SuccessCount int         `json:"successCount"`
	FailureCount int         `json:"failureCount"`
}

// Clone returns a copy so callers cannot mutate stored state.
func (x *MemoryEntry) Clone() *MemoryEntry {
	if x == nil {
		return nil
	}
	dup := *x
	return &dup
}
