package config

import (
	"cable"
	"cable/load"
	"cable/maths"
	"cable/mech"
	"cable/morph"
	"cable/solver"
	"cable/types"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
)

// Logger 按日志配置创建
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opt := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opt))
	}
	return slog.New(slog.NewTextHandler(w, opt))
}

// CableOptions 形态离散参数
func (c *Config) CableOptions(logger *slog.Logger) (cable.Options, error) {
	m := c.Morphology
	opt := cable.DefaultOptions()
	opt.Logger = logger
	policy, err := load.ParseRootPolicy(m.RootPolicy)
	if err != nil {
		return opt, err
	}
	opt.Trace.RootPolicy = policy
	opt.Trace.GapTolerance = m.GapTolerance
	opt.Trace.BridgeInterruptions = m.Bridge
	for _, name := range m.RelevantTypes {
		t, err := types.ParseTissueType(name)
		if err != nil {
			return opt, err
		}
		opt.Trace.RelevantTypes = append(opt.Trace.RelevantTypes, t)
	}
	key, err := morph.ParseSortKey(m.Sort)
	if err != nil {
		return opt, err
	}
	opt.Partition.Sort = key
	opt.Partition.MaxBranchLen = m.MaxBranchLen
	opt.Partition.SphericalSoma = m.SphericalSoma
	opt.Ncomp = m.Ncomp
	opt.MinRadius = m.MinRadius
	return opt, nil
}

// SolverOptions 求解参数
func (c *Config) SolverOptions(logger *slog.Logger) (solver.Options, error) {
	opt := solver.DefaultOptions()
	opt.Logger = logger
	method, err := solver.ParseMethod(c.Solver.Method)
	if err != nil {
		return opt, err
	}
	backend, err := maths.ParseBackend(c.Solver.Backend)
	if err != nil {
		return opt, err
	}
	opt.Dt = c.Solver.Dt
	opt.TMax = c.Solver.TMax
	opt.Method = method
	opt.Backend = backend
	opt.Workers = c.Solver.Workers
	opt.InitStates = c.Solver.InitStates
	return opt, nil
}

// Build 读取形态并按配置构建神经元
func (c *Config) Build(logger *slog.Logger) (*cable.Cell, error) {
	opt, err := c.CableOptions(logger)
	if err != nil {
		return nil, err
	}
	m, err := cable.DiscretizeFile(c.Morphology.File, opt)
	if err != nil {
		return nil, err
	}
	return c.BuildCell(m, opt)
}

// BuildCell 在已离散的形态上构建神经元
func (c *Config) BuildCell(m *cable.Morphology, opt cable.Options) (*cable.Cell, error) {
	cell, err := cable.NewCell(m, opt)
	if err != nil {
		return nil, err
	}
	for _, b := range slices.Sorted(maps.Keys(c.Morphology.BranchNcomp)) {
		if err := cell.SetNcomp(b, c.Morphology.BranchNcomp[b]); err != nil {
			return nil, fmt.Errorf("branch_ncomp: %w", err)
		}
	}
	for name, v := range map[string]float64{
		types.ParamCapacitance:      c.Cell.Capacitance,
		types.ParamAxialResistivity: c.Cell.AxialResistivity,
		types.StateVoltage:          c.Cell.Voltage,
	} {
		if err := cell.Set(name, v); err != nil {
			return nil, err
		}
	}
	for i, ch := range c.Cell.Channels {
		if err := insertChannel(cell, ch); err != nil {
			return nil, fmt.Errorf("channels[%d]: %w", i, err)
		}
	}
	for i, p := range c.Cell.Params {
		comps, err := selectComps(cell, p.Selection)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		if err := cell.Set(p.Name, p.Value, comps...); err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
	}
	for i, s := range c.Synapses {
		if err := connect(cell, s); err != nil {
			return nil, fmt.Errorf("synapses[%d]: %w", i, err)
		}
	}
	for i, s := range c.Stimuli {
		g, err := cell.Comp(s.Branch, s.Loc)
		if err == nil {
			err = cell.Stimulate(g, s.Current)
		}
		if err != nil {
			return nil, fmt.Errorf("stimuli[%d]: %w", i, err)
		}
	}
	for i, s := range c.Clamps {
		g, err := cell.Comp(s.Branch, s.Loc)
		if err == nil {
			err = cell.Clamp(g, s.Name, s.Values)
		}
		if err != nil {
			return nil, fmt.Errorf("clamps[%d]: %w", i, err)
		}
	}
	for i, r := range c.Recordings {
		g, err := cell.Comp(r.Branch, r.Loc)
		if err == nil {
			err = cell.Record(g, r.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("recordings[%d]: %w", i, err)
		}
	}
	return cell, nil
}

// selectComps 分组与分支的并集，都为空时返回 nil 表示全部
func selectComps(cell *cable.Cell, sel Selection) ([]int, error) {
	if len(sel.Groups) == 0 && len(sel.Branches) == 0 {
		return nil, nil
	}
	comps, err := cell.BranchComps(sel.Branches...)
	if err != nil {
		return nil, err
	}
	for _, group := range sel.Groups {
		gc, err := cell.GroupComps(group)
		if err != nil {
			return nil, err
		}
		comps = append(comps, gc...)
	}
	slices.Sort(comps)
	comps = slices.Compact(comps)
	if len(comps) == 0 {
		return nil, fmt.Errorf("选择为空: %w", types.ErrConfiguration)
	}
	return comps, nil
}

func insertChannel(cell *cable.Cell, cfg ChannelConfig) error {
	ch, err := mech.NewChannel(cfg.Kind, cfg.Name)
	if err != nil {
		return err
	}
	comps, err := selectComps(cell, cfg.Selection)
	if err != nil {
		return err
	}
	if err := cell.Insert(ch, comps...); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Params)) {
		if err := cell.Set(name, cfg.Params[name], comps...); err != nil {
			return err
		}
	}
	return nil
}

func connect(cell *cable.Cell, cfg SynapseConfig) error {
	syn, err := mech.NewSynapse(cfg.Kind, cfg.Name)
	if err != nil {
		return err
	}
	pre, err := cell.Comp(cfg.Pre.Branch, cfg.Pre.Loc)
	if err != nil {
		return err
	}
	post, err := cell.Comp(cfg.Post.Branch, cfg.Post.Loc)
	if err != nil {
		return err
	}
	index, err := cell.Connect(syn, pre, post)
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Params)) {
		if err := cell.SetSynapse(index, name, cfg.Params[name]); err != nil {
			return err
		}
	}
	return nil
}
