package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Rand 随机数来源，*rand.Rand 满足该接口
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Range 闭区间 [Lo, Hi]。
// YAML/JSON 中既可以写成 [10, 15]，也可以写成单个数字 10（Lo = Hi）。
type Range struct {
	Lo float64
	Hi float64
}

// R 构造区间
func R(lo, hi float64) Range { return Range{Lo: lo, Hi: hi} }

// Valid 区间有序且非负
func (r Range) Valid() bool {
	return r.Lo >= 0 && r.Lo <= r.Hi
}

// Float 在 [Lo, Hi] 内均匀取值
func (r Range) Float(rnd Rand) float64 {
	if r.Hi <= r.Lo {
		return r.Lo
	}
	return r.Lo + (r.Hi-r.Lo)*rnd.Float64()
}

// Int 在整数闭区间 [int(Lo), int(Hi)] 内均匀取值
func (r Range) Int(rnd Rand) int {
	lo, hi := int(r.Lo), int(r.Hi)
	if hi <= lo {
		return lo
	}
	return lo + rnd.Intn(hi-lo+1)
}

// Seconds 取整数秒的停顿时长
func (r Range) Seconds(rnd Rand) time.Duration {
	return time.Duration(r.Int(rnd)) * time.Second
}

func (r Range) String() string {
	if r.Lo == r.Hi {
		return fmt.Sprintf("%v", r.Lo)
	}
	return fmt.Sprintf("[%v, %v]", r.Lo, r.Hi)
}

func (r *Range) set(vals []float64) error {
	switch len(vals) {
	case 1:
		r.Lo, r.Hi = vals[0], vals[0]
	case 2:
		r.Lo, r.Hi = vals[0], vals[1]
	default:
		return fmt.Errorf("区间需要 1 或 2 个数字，实际 %d 个", len(vals))
	}
	return nil
}

// UnmarshalYAML 支持标量和序列两种写法
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		return r.set([]float64{v})
	case yaml.SequenceNode:
		var vals []float64
		if err := node.Decode(&vals); err != nil {
			return err
		}
		return r.set(vals)
	default:
		return fmt.Errorf("第 %d 行: 无法解析区间", node.Line)
	}
}

// MarshalYAML 输出为 [lo, hi]
func (r Range) MarshalYAML() (interface{}, error) {
	return []float64{r.Lo, r.Hi}, nil
}

// UnmarshalJSON 支持 10 和 [10, 15]
func (r *Range) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		return r.set([]float64{v})
	}
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	return r.set(vals)
}

// MarshalJSON 输出为 [lo, hi]
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{r.Lo, r.Hi})
}
