package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MetaKind 标识 MetaValue 中保存的原始类型。
type MetaKind uint8

const (
	MetaString MetaKind = iota + 1
	MetaInt
	MetaFloat
	MetaBool
)

// MetaValue 是向量索引元数据允许的取值：string、int、float 或 bool 之一。
// 零值不合法，只能通过构造函数或 Coerce 得到。
type MetaValue struct {
	kind MetaKind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringValue(s string) MetaValue { return MetaValue{kind: MetaString, s: s} }
func IntValue(i int64) MetaValue     { return MetaValue{kind: MetaInt, i: i} }
func FloatValue(f float64) MetaValue { return MetaValue{kind: MetaFloat, f: f} }
func BoolValue(b bool) MetaValue     { return MetaValue{kind: MetaBool, b: b} }

// Kind 返回取值类型，非法零值返回 0。
func (v MetaValue) Kind() MetaKind { return v.kind }

// Valid 判断是否由构造函数创建。
func (v MetaValue) Valid() bool { return v.kind != 0 }

// Interface 返回底层的 Go 值（string / int64 / float64 / bool）。
func (v MetaValue) Interface() any {
	switch v.kind {
	case MetaString:
		return v.s
	case MetaInt:
		return v.i
	case MetaFloat:
		return v.f
	case MetaBool:
		return v.b
	}
	return nil
}

// String 返回可读的文本形式。
func (v MetaValue) String() string {
	switch v.kind {
	case MetaString:
		return v.s
	case MetaInt:
		return strconv.FormatInt(v.i, 10)
	case MetaFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case MetaBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Int 返回整数值；字符串形式的整数也会被接受。
func (v MetaValue) Int() (int64, bool) {
	switch v.kind {
	case MetaInt:
		return v.i, true
	case MetaFloat:
		if v.f == float64(int64(v.f)) {
			return int64(v.f), true
		}
	case MetaString:
		if i, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Equal 比较两个取值，整数与整值浮点视为相等。
func (v MetaValue) Equal(o MetaValue) bool {
	if v.kind == o.kind {
		return v.Interface() == o.Interface()
	}
	vi, ok1 := v.Int()
	oi, ok2 := o.Int()
	if ok1 && ok2 && v.kind != MetaString && o.kind != MetaString {
		return vi == oi
	}
	return false
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	coerced, ok := Coerce(raw)
	if !ok {
		return fmt.Errorf("metadata value must not be null")
	}
	*v = coerced
	return nil
}

// Coerce 把任意值转换成 MetaValue。
// nil 返回 ok=false（调用方应丢弃该键）；不支持的类型按 fmt.Sprint 转成字符串。
func Coerce(raw any) (MetaValue, bool) {
	switch x := raw.(type) {
	case nil:
		return MetaValue{}, false
	case MetaValue:
		return x, x.Valid()
	case string:
		return StringValue(x), true
	case bool:
		return BoolValue(x), true
	case int:
		return IntValue(int64(x)), true
	case int8:
		return IntValue(int64(x)), true
	case int16:
		return IntValue(int64(x)), true
	case int32:
		return IntValue(int64(x)), true
	case int64:
		return IntValue(x), true
	case uint:
		return IntValue(int64(x)), true
	case uint8:
		return IntValue(int64(x)), true
	case uint16:
		return IntValue(int64(x)), true
	case uint32:
		return IntValue(int64(x)), true
	case uint64:
		return IntValue(int64(x)), true
	case float32:
		return FloatValue(float64(x)), true
	case float64:
		return FloatValue(x), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return IntValue(i), true
		}
		if f, err := x.Float64(); err == nil {
			return FloatValue(f), true
		}
		return StringValue(x.String()), true
	default:
		return StringValue(fmt.Sprint(x)), true
	}
}

// Metadata 是向量索引中每个分块携带的元数据。
type Metadata map[string]MetaValue

// CoerceMetadata 转换调用方传入的元数据，丢弃 nil 值。
func CoerceMetadata(in map[string]any) Metadata {
	out := make(Metadata, len(in))
	for k, raw := range in {
		if v, ok := Coerce(raw); ok {
			out[k] = v
		}
	}
	return out
}

// Clone 返回浅拷贝。
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Str 返回 key 对应值的字符串形式，不存在时返回空串。
func (m Metadata) Str(key string) string {
	if v, ok := m[key]; ok {
		return v.String()
	}
	return ""
}

// Int 返回 key 对应的整数值。
func (m Metadata) Int(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Matches 判断 m 是否满足 filter 中全部的等值条件。
func (m Metadata) Matches(filter Metadata) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// Plain 转成普通 map，供 JSON 编码或写入后端。
func (m Metadata) Plain() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v.Valid() {
			out[k] = v.Interface()
		}
	}
	return out
}
