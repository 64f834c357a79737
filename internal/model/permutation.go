package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Permutation 数字 0-9 的一个排列，入库为 JSON 数组，未分配时为 NULL
type Permutation []int

// Valid 判断是否为完整的 0-9 排列
func (p Permutation) Valid() bool {
	if len(p) != 10 {
		return false
	}
	var seen [10]bool
	for _, d := range p {
		if d < 0 || d > 9 || seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// IndexOf 返回数字在排列中的下标（即行/列坐标），不存在返回 -1
func (p Permutation) IndexOf(digit int) int {
	for i, d := range p {
		if d == digit {
			return i
		}
	}
	return -1
}

// Value implements driver.Valuer
func (p Permutation) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]int(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (p *Permutation) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("permutation: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*p = nil
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("permutation: %w", err)
	}
	*p = out
	return nil
}
