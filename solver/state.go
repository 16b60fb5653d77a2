package solver

import (
	"cable/mech"
	"slices"
)

// State 单次仿真独占的状态
type State struct {
	Time     float64       // 当前时间(ms)
	Step     int           // 已完成步数
	V        []float64     // 舱室电压(mV)
	Channels [][][]float64 // 通道实例 -> 舱室 -> 状态
	Synapses [][]float64   // 突触 -> 状态
}

// newState 由模型初始值创建状态
func newState(m *Model) *State {
	st := &State{
		V:        slices.Clone(m.Voltage),
		Channels: make([][][]float64, len(m.Channels)),
		Synapses: make([][]float64, len(m.Synapses)),
	}
	for si, site := range m.Channels {
		st.Channels[si] = make([][]float64, len(site.Comps))
		defaults := mech.Defaults(site.Channel.States())
		for j := range site.Comps {
			if site.States != nil {
				st.Channels[si][j] = slices.Clone(site.States[j])
			} else {
				st.Channels[si][j] = slices.Clone(defaults)
			}
		}
	}
	for k, syn := range m.Synapses {
		if syn.States != nil {
			st.Synapses[k] = slices.Clone(syn.States)
		} else {
			st.Synapses[k] = mech.Defaults(syn.Synapse.States())
		}
	}
	return st
}

// Snapshot 深拷贝
func (st *State) Snapshot() *State {
	cp := &State{
		Time:     st.Time,
		Step:     st.Step,
		V:        slices.Clone(st.V),
		Channels: make([][][]float64, len(st.Channels)),
		Synapses: make([][]float64, len(st.Synapses)),
	}
	for si, comps := range st.Channels {
		cp.Channels[si] = make([][]float64, len(comps))
		for j, s := range comps {
			cp.Channels[si][j] = slices.Clone(s)
		}
	}
	for k, s := range st.Synapses {
		cp.Synapses[k] = slices.Clone(s)
	}
	return cp
}
