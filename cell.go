package cable

import (
	"cable/graph"
	"cable/mech"
	"cable/solver"
	"cable/types"
	"context"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
)

// channelSlot 一个通道实例在各舱室上的参数与状态，未插入的舱室为 nil
type channelSlot struct {
	ch     mech.Channel
	params [][]float64
	states [][]float64
}

func (s *channelSlot) present(g int) bool { return s.params[g] != nil }

// Cell 可仿真的单个神经元
type Cell struct {
	morph  *Morphology
	top    *graph.Topology
	logger *slog.Logger

	capacitance []float64 // 膜电容(uF/cm²)
	axial       []float64 // 轴向电阻率(Ω·cm)
	voltage     []float64 // 初始电压(mV)
	radius      []float64 // 半径覆盖值(um)，NaN 表示使用离散结果

	channels   []*channelSlot
	synapses   []solver.SynapseSite
	stimuli    []solver.Stimulus
	clamps     []solver.Clamp
	recordings []solver.Recording
}

// NewCell 按配置的舱室数组装拓扑并设置默认参数
func NewCell(m *Morphology, opt Options) (*Cell, error) {
	ncomp := opt.Ncomp
	if ncomp == 0 {
		ncomp = types.DefaultNcomp
	}
	top, err := graph.Assemble(m.Branches, []int{ncomp}, opt.MinRadius)
	if err != nil {
		return nil, err
	}
	n := top.NumComps()
	c := &Cell{
		morph:       m,
		top:         top,
		logger:      opt.logger(),
		capacitance: slices.Repeat([]float64{types.DefaultCapacitance}, n),
		axial:       slices.Repeat([]float64{types.DefaultAxialResistivity}, n),
		voltage:     slices.Repeat([]float64{types.DefaultVoltage}, n),
		radius:      slices.Repeat([]float64{math.NaN()}, n),
	}
	c.logger.Info("创建神经元", "branches", top.NumBranches(), "comps", n)
	return c, nil
}

// Topology 舱室拓扑，只读
func (c *Cell) Topology() *graph.Topology { return c.top }

// Morphology 形态离散结果
func (c *Cell) Morphology() *Morphology { return c.morph }

// NumComps 舱室数
func (c *Cell) NumComps() int { return c.top.NumComps() }

// Comp 分支 b 上位置 loc 的舱室
func (c *Cell) Comp(b int, loc float64) (int, error) { return c.top.Comp(b, loc) }

// BranchComps 多个分支的全部舱室
func (c *Cell) BranchComps(branches ...int) ([]int, error) {
	var comps []int
	for _, b := range branches {
		bc, err := c.top.BranchComps(b)
		if err != nil {
			return nil, err
		}
		comps = append(comps, bc...)
	}
	return comps, nil
}

// GroupComps 命名分组的全部舱室
func (c *Cell) GroupComps(group string) ([]int, error) {
	branches, err := c.top.Group(group)
	if err != nil {
		return nil, err
	}
	return c.BranchComps(branches...)
}

// AddToGroup 把分支加入命名分组
func (c *Cell) AddToGroup(group string, branches ...int) error {
	return c.top.AddToGroup(group, branches...)
}

// selectComps 空列表表示全部舱室
func (c *Cell) selectComps(comps []int) ([]int, error) {
	if len(comps) == 0 {
		all := make([]int, c.NumComps())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, g := range comps {
		if err := c.checkComp(g); err != nil {
			return nil, err
		}
	}
	return comps, nil
}

func (c *Cell) checkComp(g int) error {
	if g < 0 || g >= c.NumComps() {
		return fmt.Errorf("舱室下标 %d 越界 [0, %d): %w", g, c.NumComps(), types.ErrIndex)
	}
	return nil
}

// cellParam 细胞级参数数组
func (c *Cell) cellParam(name string) []float64 {
	switch name {
	case types.ParamCapacitance:
		return c.capacitance
	case types.ParamAxialResistivity:
		return c.axial
	case types.StateVoltage:
		return c.voltage
	}
	return nil
}

// lookup 通道参数或状态: 返回通道、数组与下标
func (c *Cell) lookup(name string) (*channelSlot, [][]float64, int) {
	for _, s := range c.channels {
		if k := mech.Index(s.ch.Params(), name); k >= 0 {
			return s, s.params, k
		}
		if k := mech.Index(s.ch.States(), name); k >= 0 {
			return s, s.states, k
		}
	}
	return nil, nil, -1
}

// Set 设置舱室参数或通道参数、状态初值，comps 为空表示全部舱室
func (c *Cell) Set(name string, value float64, comps ...int) error {
	comps, err := c.selectComps(comps)
	if err != nil {
		return err
	}
	if arr := c.cellParam(name); arr != nil {
		for _, g := range comps {
			arr[g] = value
		}
		return nil
	}
	if name == types.ParamRadius {
		if !(value > 0) {
			return fmt.Errorf("半径必须为正，得到 %g: %w", value, types.ErrConfiguration)
		}
		for _, g := range comps {
			c.radius[g] = value
			c.top.Comps[g].Radius = value
		}
		return nil
	}
	slot, arr, k := c.lookup(name)
	if slot == nil {
		return fmt.Errorf("未知参数 %q: %w", name, types.ErrConfiguration)
	}
	for _, g := range comps {
		if !slot.present(g) {
			return fmt.Errorf("舱室 %d 没有插入通道 %s: %w", g, slot.ch.Name(), types.ErrConfiguration)
		}
	}
	for _, g := range comps {
		arr[g][k] = value
	}
	return nil
}

// Param 每个舱室上的参数值，未插入通道的舱室为 NaN
func (c *Cell) Param(name string) ([]float64, error) {
	if arr := c.cellParam(name); arr != nil {
		return slices.Clone(arr), nil
	}
	out := make([]float64, c.NumComps())
	if name == types.ParamRadius {
		for g, comp := range c.top.Comps {
			out[g] = comp.Radius
		}
		return out, nil
	}
	if name == types.ParamLength {
		for g, comp := range c.top.Comps {
			out[g] = comp.Length
		}
		return out, nil
	}
	slot, arr, k := c.lookup(name)
	if slot == nil {
		return nil, fmt.Errorf("未知参数 %q: %w", name, types.ErrConfiguration)
	}
	for g := range out {
		out[g] = math.NaN()
		if slot.present(g) {
			out[g] = arr[g][k]
		}
	}
	return out, nil
}

// Insert 在舱室上插入通道，comps 为空表示全部舱室；已插入的舱室保持原值
func (c *Cell) Insert(ch mech.Channel, comps ...int) error {
	comps, err := c.selectComps(comps)
	if err != nil {
		return err
	}
	var slot *channelSlot
	for _, s := range c.channels {
		if s.ch.Name() != ch.Name() {
			continue
		}
		if reflect.TypeOf(s.ch) != reflect.TypeOf(ch) {
			return fmt.Errorf("通道名 %s 已被其它类型使用: %w", ch.Name(), types.ErrConfiguration)
		}
		slot = s
	}
	if slot == nil {
		for _, s := range c.channels {
			for _, v := range slices.Concat(ch.Params(), ch.States()) {
				if mech.Index(s.ch.Params(), v.Name) >= 0 || mech.Index(s.ch.States(), v.Name) >= 0 {
					return fmt.Errorf("通道 %s 的 %s 与通道 %s 重名: %w", ch.Name(), v.Name, s.ch.Name(), types.ErrConfiguration)
				}
			}
		}
		slot = &channelSlot{
			ch:     ch,
			params: make([][]float64, c.NumComps()),
			states: make([][]float64, c.NumComps()),
		}
		c.channels = append(c.channels, slot)
	}
	for _, g := range comps {
		if slot.present(g) {
			continue
		}
		slot.params[g] = mech.Defaults(ch.Params())
		slot.states[g] = mech.Defaults(ch.States())
	}
	c.logger.Debug("插入通道", "channel", ch.Name(), "comps", len(comps))
	return nil
}

// InsertBranches 在分支上插入通道
func (c *Cell) InsertBranches(ch mech.Channel, branches ...int) error {
	comps, err := c.BranchComps(branches...)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		return nil
	}
	return c.Insert(ch, comps...)
}

// InsertGroup 在分组上插入通道
func (c *Cell) InsertGroup(ch mech.Channel, group string) error {
	comps, err := c.GroupComps(group)
	if err != nil {
		return err
	}
	return c.Insert(ch, comps...)
}

// Channels 已插入的通道名称
func (c *Cell) Channels() []string {
	names := make([]string, len(c.channels))
	for i, s := range c.channels {
		names[i] = s.ch.Name()
	}
	return names
}

// Connect 在两个舱室间连接突触，返回突触序号
func (c *Cell) Connect(syn mech.Synapse, pre, post int) (int, error) {
	if err := c.checkComp(pre); err != nil {
		return 0, err
	}
	if err := c.checkComp(post); err != nil {
		return 0, err
	}
	c.synapses = append(c.synapses, solver.SynapseSite{
		Synapse: syn,
		Pre:     pre,
		Post:    post,
		Params:  mech.Defaults(syn.Params()),
		States:  mech.Defaults(syn.States()),
	})
	return len(c.synapses) - 1, nil
}

// SetSynapse 设置突触参数或状态初值
func (c *Cell) SetSynapse(index int, name string, value float64) error {
	if index < 0 || index >= len(c.synapses) {
		return fmt.Errorf("突触序号 %d 越界: %w", index, types.ErrIndex)
	}
	syn := &c.synapses[index]
	if k := mech.Index(syn.Synapse.Params(), name); k >= 0 {
		syn.Params[k] = value
		return nil
	}
	if k := mech.Index(syn.Synapse.States(), name); k >= 0 {
		syn.States[k] = value
		return nil
	}
	return fmt.Errorf("突触 %s 没有 %q: %w", syn.Synapse.Name(), name, types.ErrConfiguration)
}

// hasState 舱室上是否存在可记录或钳位的量
func (c *Cell) hasState(g int, name string, synapses bool) bool {
	if name == types.StateVoltage {
		return true
	}
	for _, s := range c.channels {
		if s.present(g) && mech.Index(s.ch.States(), name) >= 0 {
			return true
		}
	}
	if synapses {
		for _, syn := range c.synapses {
			if syn.Post == g && mech.Index(syn.Synapse.States(), name) >= 0 {
				return true
			}
		}
	}
	return false
}

// Stimulate 在舱室上注入电流，current[k] 作用于第 k 步(nA)
func (c *Cell) Stimulate(g int, current []float64) error {
	if err := c.checkComp(g); err != nil {
		return err
	}
	c.stimuli = append(c.stimuli, solver.Stimulus{Comp: g, Current: slices.Clone(current)})
	return nil
}

// Clamp 把舱室上的电压或通道状态钳位，values[k] 作用于第 k 个记录时刻，NaN 表示不钳位
func (c *Cell) Clamp(g int, name string, values []float64) error {
	if err := c.checkComp(g); err != nil {
		return err
	}
	if !c.hasState(g, name, false) {
		return fmt.Errorf("舱室 %d 上没有状态 %q: %w", g, name, types.ErrConfiguration)
	}
	c.clamps = append(c.clamps, solver.Clamp{Comp: g, Name: name, Values: slices.Clone(values)})
	return nil
}

// Record 记录舱室上的电压或状态
func (c *Cell) Record(g int, name string) error {
	if err := c.checkComp(g); err != nil {
		return err
	}
	if !c.hasState(g, name, true) {
		return fmt.Errorf("舱室 %d 上没有状态 %q: %w", g, name, types.ErrConfiguration)
	}
	c.recordings = append(c.recordings, solver.Recording{Comp: g, Name: name})
	return nil
}

// ClearStimuli 删除全部刺激
func (c *Cell) ClearStimuli() { c.stimuli = nil }

// ClearClamps 删除全部钳位
func (c *Cell) ClearClamps() { c.clamps = nil }

// ClearRecordings 删除全部记录
func (c *Cell) ClearRecordings() { c.recordings = nil }

// Model 生成求解模型，模型持有参数的副本
func (c *Cell) Model() *solver.Model {
	m := &solver.Model{
		Topology:         c.top,
		Capacitance:      slices.Clone(c.capacitance),
		AxialResistivity: slices.Clone(c.axial),
		Voltage:          slices.Clone(c.voltage),
		Stimuli:          slices.Clone(c.stimuli),
		Clamps:           slices.Clone(c.clamps),
		Recordings:       slices.Clone(c.recordings),
	}
	for _, s := range c.channels {
		site := solver.ChannelSite{Channel: s.ch}
		for g := range s.params {
			if !s.present(g) {
				continue
			}
			site.Comps = append(site.Comps, g)
			site.Params = append(site.Params, slices.Clone(s.params[g]))
			site.States = append(site.States, slices.Clone(s.states[g]))
		}
		if len(site.Comps) > 0 {
			m.Channels = append(m.Channels, site)
		}
	}
	for _, syn := range c.synapses {
		syn.Params = slices.Clone(syn.Params)
		syn.States = slices.Clone(syn.States)
		m.Synapses = append(m.Synapses, syn)
	}
	return m
}

// Integrate 求解电压
func (c *Cell) Integrate(ctx context.Context, opt solver.Options) (*solver.Result, error) {
	if opt.Logger == nil {
		opt.Logger = c.logger
	}
	return solver.Integrate(ctx, c.Model(), opt)
}
