package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Configurations 是按插入顺序保存的 key→value 配置集合。
// nil 指针等价于空集合，所有只读方法都可以在 nil 上调用。
type Configurations struct {
	keys   []string
	values map[string]string
}

func NewConfigurations() *Configurations {
	return &Configurations{values: make(map[string]string)}
}

// ConfigurationsOf 按 pairs 顺序（k1, v1, k2, v2...）构造配置，主要用于测试与合并。
func ConfigurationsOf(pairs ...string) *Configurations {
	c := NewConfigurations()
	for i := 0; i+1 < len(pairs); i += 2 {
		c.Set(pairs[i], pairs[i+1])
	}
	return c
}

// Set 写入配置；已存在的 key 保留原有位置。
func (c *Configurations) Set(key, value string) {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

func (c *Configurations) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

func (c *Configurations) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

func (c *Configurations) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clone 返回深拷贝。
func (c *Configurations) Clone() *Configurations {
	out := NewConfigurations()
	if c == nil {
		return out
	}
	for _, k := range c.keys {
		out.Set(k, c.values[k])
	}
	return out
}

// Merge 依次叠加 layers，后面的层覆盖前面的同名 key。
func Merge(layers ...*Configurations) *Configurations {
	out := NewConfigurations()
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		for _, k := range layer.keys {
			out.Set(k, layer.values[k])
		}
	}
	return out
}

// ToMap 返回无序的普通 map 拷贝。
func (c *Configurations) ToMap() map[string]string {
	out := make(map[string]string, c.Len())
	if c == nil {
		return out
	}
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Configurations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if c != nil {
		for i, k := range c.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(c.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按 JSON 对象中出现的顺序还原 key 顺序。
func (c *Configurations) UnmarshalJSON(data []byte) error {
	c.keys = nil
	c.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil // null
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: configurations must be a JSON object", ErrInvalidInput)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: configuration key must be a string", ErrInvalidInput)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: configuration %q: %v", ErrInvalidInput, key, err)
		}
		c.Set(key, value)
	}
	_, err = dec.Token() // '}'
	return err
}
