// Package solver 以隐式树求解推进舱室电压方程。
//
// 单位: 长度 um，时间 ms，电压 mV，膜电容 uF/cm²，轴向电阻率 Ω·cm，
// 外部电流与突触电流 nA。
package solver

import (
	"cable/graph"
	"cable/mech"
	"cable/types"
	"fmt"
	"math"
	"slices"
)

// ChannelSite 插入到一组舱室上的离子通道
type ChannelSite struct {
	Channel mech.Channel
	Comps   []int       // 舱室下标，互不重复
	Params  [][]float64 // 每个舱室的参数，顺序同 Channel.Params()
	States  [][]float64 // 每个舱室的初始状态，nil 使用默认值
}

// SynapseSite 连接两个舱室的突触
type SynapseSite struct {
	Synapse   mech.Synapse
	Pre, Post int
	Params    []float64 // nil 使用默认值
	States    []float64 // 初始状态，nil 使用默认值
}

// Stimulus 外部注入电流，Current[k] 作用于第 k 步(nA)，超出长度视为 0
type Stimulus struct {
	Comp    int
	Current []float64
}

// Clamp 把电压或状态钳位到给定值，Values[k] 作用于第 k 个记录时刻，NaN 表示不钳位
type Clamp struct {
	Comp   int
	Name   string // types.StateVoltage 或通道状态名
	Values []float64
}

// Recording 记录一个舱室上的电压或状态
type Recording struct {
	Comp int
	Name string // types.StateVoltage、通道状态名或突触状态名(突触后舱室)
}

// Label 记录名称
func (r Recording) Label() string { return fmt.Sprintf("%s@%d", r.Name, r.Comp) }

// Model 仿真模型，求解期间只读
type Model struct {
	Topology         *graph.Topology
	Capacitance      []float64 // 每个舱室的膜电容
	AxialResistivity []float64 // 每个舱室的轴向电阻率
	Voltage          []float64 // 每个舱室的初始电压

	Channels   []ChannelSite
	Synapses   []SynapseSite
	Stimuli    []Stimulus
	Clamps     []Clamp
	Recordings []Recording
}

// NewModel 以默认参数创建模型
func NewModel(top *graph.Topology) *Model {
	n := top.NumComps()
	return &Model{
		Topology:         top,
		Capacitance:      slices.Repeat([]float64{types.DefaultCapacitance}, n),
		AxialResistivity: slices.Repeat([]float64{types.DefaultAxialResistivity}, n),
		Voltage:          slices.Repeat([]float64{types.DefaultVoltage}, n),
	}
}

func (m *Model) checkComp(c int) error {
	if c < 0 || c >= m.Topology.NumComps() {
		return fmt.Errorf("舱室下标 %d 越界 [0, %d): %w", c, m.Topology.NumComps(), types.ErrIndex)
	}
	return nil
}

// Validate 检查数组长度、下标与名称
func (m *Model) Validate() error {
	if m.Topology == nil || m.Topology.NumComps() == 0 {
		return fmt.Errorf("模型没有拓扑: %w", types.ErrConfiguration)
	}
	n := m.Topology.NumComps()
	for name, arr := range map[string][]float64{
		types.ParamCapacitance:      m.Capacitance,
		types.ParamAxialResistivity: m.AxialResistivity,
		types.StateVoltage:          m.Voltage,
	} {
		if len(arr) != n {
			return fmt.Errorf("%s 长度 %d 与舱室数 %d 不一致: %w", name, len(arr), n, types.ErrConfiguration)
		}
	}
	for i := range n {
		if !(m.Capacitance[i] > 0) || !(m.AxialResistivity[i] > 0) {
			return fmt.Errorf("舱室 %d 的膜电容与轴向电阻率必须为正: %w", i, types.ErrConfiguration)
		}
	}
	for _, site := range m.Channels {
		np, ns := len(site.Channel.Params()), len(site.Channel.States())
		if len(site.Params) != len(site.Comps) {
			return fmt.Errorf("通道 %s 参数组数与舱室数不一致: %w", site.Channel.Name(), types.ErrConfiguration)
		}
		seen := map[int]bool{}
		for j, c := range site.Comps {
			if err := m.checkComp(c); err != nil {
				return fmt.Errorf("通道 %s: %w", site.Channel.Name(), err)
			}
			if seen[c] {
				return fmt.Errorf("通道 %s 在舱室 %d 重复插入: %w", site.Channel.Name(), c, types.ErrConfiguration)
			}
			seen[c] = true
			if len(site.Params[j]) != np || (site.States != nil && len(site.States[j]) != ns) {
				return fmt.Errorf("通道 %s 在舱室 %d 的参数或状态长度错误: %w", site.Channel.Name(), c, types.ErrConfiguration)
			}
		}
	}
	for k, syn := range m.Synapses {
		if err := m.checkComp(syn.Pre); err != nil {
			return fmt.Errorf("突触 %d: %w", k, err)
		}
		if err := m.checkComp(syn.Post); err != nil {
			return fmt.Errorf("突触 %d: %w", k, err)
		}
		if (syn.Params != nil && len(syn.Params) != len(syn.Synapse.Params())) ||
			(syn.States != nil && len(syn.States) != len(syn.Synapse.States())) {
			return fmt.Errorf("突触 %d 的参数或状态长度错误: %w", k, types.ErrConfiguration)
		}
	}
	for _, s := range m.Stimuli {
		if err := m.checkComp(s.Comp); err != nil {
			return fmt.Errorf("外部电流: %w", err)
		}
	}
	scratch := newState(m)
	for _, c := range m.Clamps {
		if _, err := m.accessor(scratch, c.Comp, c.Name); err != nil {
			return fmt.Errorf("钳位: %w", err)
		}
	}
	for _, r := range m.Recordings {
		if _, err := m.accessor(scratch, r.Comp, r.Name); err != nil {
			return fmt.Errorf("记录: %w", err)
		}
	}
	return nil
}

// accessor 返回指向状态中某个量的指针
func (m *Model) accessor(st *State, comp int, name string) (*float64, error) {
	if err := m.checkComp(comp); err != nil {
		return nil, err
	}
	if name == types.StateVoltage {
		return &st.V[comp], nil
	}
	for si, site := range m.Channels {
		k := mech.Index(site.Channel.States(), name)
		if k < 0 {
			continue
		}
		if j := slices.Index(site.Comps, comp); j >= 0 {
			return &st.Channels[si][j][k], nil
		}
	}
	for si, syn := range m.Synapses {
		if syn.Post != comp {
			continue
		}
		if k := mech.Index(syn.Synapse.States(), name); k >= 0 {
			return &st.Synapses[si][k], nil
		}
	}
	return nil, fmt.Errorf("舱室 %d 上没有状态 %q: %w", comp, name, types.ErrConfiguration)
}

// areas 每个舱室的膜面积(um²)
func (m *Model) areas() []float64 {
	a := make([]float64, m.Topology.NumComps())
	for i, c := range m.Topology.Comps {
		a[i] = c.Area()
	}
	return a
}

// couplings 每条边的耦合速率(1/ms): up 为子舱室行对父舱室，low 为父舱室行对子舱室
func (m *Model) couplings(area []float64) (up, low []float64, err error) {
	g, err := m.Topology.Conductances(m.AxialResistivity)
	if err != nil {
		return nil, nil, err
	}
	n := len(g)
	up, low = make([]float64, n), make([]float64, n)
	for i, p := range m.Topology.Parent {
		if p == types.Root {
			continue
		}
		// S / (um² * 1e-8 * uF/cm²) = 1e3 / ms
		up[i] = g[i] * 1e3 / (area[i] * 1e-8 * m.Capacitance[i])
		low[i] = g[i] * 1e3 / (area[p] * 1e-8 * m.Capacitance[p])
		if math.IsInf(up[i], 0) || math.IsInf(low[i], 0) {
			return nil, nil, fmt.Errorf("舱室 %d 耦合非有限: %w", i, types.ErrConfiguration)
		}
	}
	return up, low, nil
}
