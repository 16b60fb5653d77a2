// Package mech 定义离子通道与突触机制的接口、注册表与常用门控求解函数。
//
// 单位约定: 电压 mV，时间 ms，通道电导 S/cm²，通道电流 mA/cm²，
// 突触电导 uS，突触电流 nA。参数与状态名称以机制实例名为前缀，如 "HH_gNa"。
package mech

import (
	"cable/types"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Var 带默认值的参数或状态
type Var struct {
	Name  string
	Value float64
}

// Mechanism 机制公共接口
type Mechanism interface {
	Name() string  // 实例名，也是参数前缀
	Params() []Var // 参数及默认值
	States() []Var // 状态及默认值
}

// Channel 离子通道，状态与参数按 Params/States 的顺序存放
type Channel interface {
	Mechanism
	// UpdateStates 用电压 v 推进一个步长，原地更新 state
	UpdateStates(state []float64, dt, v float64, params []float64)
	// Current 膜电流密度(mA/cm²)，外向为正
	Current(state []float64, v float64, params []float64) float64
}

// Initializer 可由电压求稳态状态的通道
type Initializer interface {
	InitStates(state []float64, v float64, params []float64)
}

// Resetter 求解后可改写电压的通道，返回新电压
type Resetter interface {
	Reset(state []float64, dt, v float64, params []float64) float64
}

// Synapse 突触，电流注入到突触后舱室
type Synapse interface {
	Mechanism
	UpdateStates(state []float64, dt, pre, post float64, params []float64)
	// Current 突触电流(nA)，外向为正
	Current(state []float64, pre, post float64, params []float64) float64
}

// Factory 按实例名创建机制
type Factory func(name string) Mechanism

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register 注册机制类型，重复注册报错
func Register(kind string, factory Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[kind]; ok {
		return fmt.Errorf("机制类型重复注册 %q: %w", kind, types.ErrConfiguration)
	}
	registry[kind] = factory
	return nil
}

// New 创建机制实例，name 为空时使用类型名
func New(kind, name string) (Mechanism, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的机制类型 %q: %w", kind, types.ErrConfiguration)
	}
	if name == "" {
		name = kind
	}
	return factory(name), nil
}

// NewChannel 创建通道实例
func NewChannel(kind, name string) (Channel, error) {
	m, err := New(kind, name)
	if err != nil {
		return nil, err
	}
	ch, ok := m.(Channel)
	if !ok {
		return nil, fmt.Errorf("机制 %q 不是离子通道: %w", kind, types.ErrConfiguration)
	}
	return ch, nil
}

// NewSynapse 创建突触实例
func NewSynapse(kind, name string) (Synapse, error) {
	m, err := New(kind, name)
	if err != nil {
		return nil, err
	}
	syn, ok := m.(Synapse)
	if !ok {
		return nil, fmt.Errorf("机制 %q 不是突触: %w", kind, types.ErrConfiguration)
	}
	return syn, nil
}

// Kinds 已注册的机制类型
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}

// Defaults 参数或状态的默认值
func Defaults(vars []Var) []float64 {
	v := make([]float64, len(vars))
	for i, x := range vars {
		v[i] = x.Value
	}
	return v
}

// Index 在变量列表中查找名称
func Index(vars []Var, name string) int {
	return slices.IndexFunc(vars, func(v Var) bool { return v.Name == name })
}

func init() {
	for kind, f := range map[string]Factory{
		"Leak":            func(name string) Mechanism { return NewLeak(name) },
		"HH":              func(name string) Mechanism { return NewHH(name) },
		"LIF":             func(name string) Mechanism { return NewLIF(name) },
		"Ionotropic":      func(name string) Mechanism { return NewIonotropic(name) },
		"TanhRate":        func(name string) Mechanism { return NewTanhRate(name) },
		"TanhConductance": func(name string) Mechanism { return NewTanhConductance(name) },
	} {
		if err := Register(kind, f); err != nil {
			panic(err)
		}
	}
}
