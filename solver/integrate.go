package solver

import (
	"cable/maths"
	"cable/mech"
	"cable/types"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// minChunk 单个协程处理的最少舱室数
const minChunk = 64

// run 一次仿真的工作数据
type run struct {
	m       *Model
	opt     Options
	logger  *slog.Logger
	workers int

	st   *State
	vNew []float64

	area   []float64 // 膜面积(um²)
	kUp    []float64 // 子舱室行对父舱室的耦合(1/ms)
	kLow   []float64 // 父舱室行对子舱室的耦合(1/ms)
	kSum   []float64 // 每行耦合之和
	iion   []float64 // 线性化点的膜电流(uA/cm²)
	gion   []float64 // 膜电流对电压的导数
	iext   []float64 // 外部电流(uA/cm²)
	isyn   []float64 // 每个突触的电流(nA)
	gsyn   []float64 // 每个突触电流对突触后电压的导数
	sys    *maths.TreeSystem
	linear maths.LinearSolver

	clamps  []*float64
	records []*float64
}

// Integrate 从模型初始状态推进到 TMax，每步依次:
// 线性化膜电流、求解电压、用上一步电压推进通道与突触状态、重置与钳位、记录。
// 出错或取消时返回已完成部分的结果
func Integrate(ctx context.Context, m *Model, opt Options) (*Result, error) {
	nSteps, err := opt.steps()
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	r, err := newRun(m, opt)
	if err != nil {
		return nil, err
	}
	res := &Result{
		RunID:  uuid.New(),
		Dt:     opt.Dt,
		Time:   make([]float64, 0, nSteps+1),
		Labels: make([]string, len(m.Recordings)),
		Traces: make([][]float64, len(m.Recordings)),
	}
	for i, rec := range m.Recordings {
		res.Labels[i] = rec.Label()
		res.Traces[i] = make([]float64, 0, nSteps+1)
	}
	logger := r.logger.With("run_id", res.RunID.String())
	logger.Info("开始仿真", "comps", m.Topology.NumComps(), "steps", nSteps,
		"method", opt.Method.String(), "backend", opt.Backend.String(), "workers", r.workers)
	start := time.Now()

	r.applyClamps(0)
	r.record(res)
	for k := range nSteps {
		if err := ctx.Err(); err != nil {
			logger.Warn("仿真已取消", "step", k)
			return r.finish(res), err
		}
		if err := r.step(ctx, k); err != nil {
			logger.Error("仿真失败", "step", k, "err", err)
			return r.finish(res), err
		}
		r.applyClamps(k + 1)
		r.record(res)
	}
	logger.Info("仿真完成", "steps", nSteps, "elapsed", time.Since(start))
	return r.finish(res), nil
}

func newRun(m *Model, opt Options) (*run, error) {
	n := m.Topology.NumComps()
	r := &run{
		m:       m,
		opt:     opt,
		logger:  opt.Logger,
		workers: opt.workers(),
		st:      newState(m),
		vNew:    make([]float64, n),
		area:    m.areas(),
		kSum:    make([]float64, n),
		iion:    make([]float64, n),
		gion:    make([]float64, n),
		iext:    make([]float64, n),
		isyn:    make([]float64, len(m.Synapses)),
		gsyn:    make([]float64, len(m.Synapses)),
		sys:     maths.NewTreeSystem(m.Topology.Parent, m.Topology.Order),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	var err error
	if r.kUp, r.kLow, err = m.couplings(r.area); err != nil {
		return nil, err
	}
	for i, p := range m.Topology.Parent {
		if p == types.Root {
			continue
		}
		r.kSum[i] += r.kUp[i]
		r.kSum[p] += r.kLow[i]
	}
	if r.linear, err = maths.NewLinearSolver(opt.Backend); err != nil {
		return nil, err
	}
	if opt.InitStates {
		for si, site := range m.Channels {
			ini, ok := site.Channel.(mech.Initializer)
			if !ok {
				continue
			}
			for j, c := range site.Comps {
				ini.InitStates(r.st.Channels[si][j], r.st.V[c], site.Params[j])
			}
		}
	}
	for _, c := range m.Clamps {
		p, _ := m.accessor(r.st, c.Comp, c.Name)
		r.clamps = append(r.clamps, p)
	}
	for _, rec := range m.Recordings {
		p, _ := m.accessor(r.st, rec.Comp, rec.Name)
		r.records = append(r.records, p)
	}
	return r, nil
}

// parallel 把 [0, n) 分块并行执行
func (r *run) parallel(ctx context.Context, n int, fn func(lo, hi int) error) error {
	if r.workers <= 1 || n < 2*minChunk {
		return fn(0, n)
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	chunk := max((n+r.workers-1)/r.workers, minChunk)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error { return fn(lo, hi) })
	}
	return g.Wait()
}

// step 推进第 k 步
func (r *run) step(ctx context.Context, k int) error {
	st := r.st
	dt := r.opt.Dt
	if err := r.linearize(ctx, k); err != nil {
		return err
	}
	switch r.opt.Method {
	case BackwardEuler:
		if err := r.implicit(dt); err != nil {
			return fmt.Errorf("第 %d 步: %w", k, err)
		}
	case CrankNicolson:
		if err := r.implicit(dt / 2); err != nil {
			return fmt.Errorf("第 %d 步: %w", k, err)
		}
		for i := range r.vNew {
			r.vNew[i] = 2*r.vNew[i] - st.V[i]
		}
	case ForwardEuler:
		r.explicit(dt)
	default:
		return fmt.Errorf("未知步进方法 %d: %w", int(r.opt.Method), types.ErrConfiguration)
	}
	for i, v := range r.vNew {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DivergenceError{Step: k, Comp: i, Name: types.StateVoltage, Value: v}
		}
	}
	// 状态用上一步电压推进
	if err := r.advanceStates(ctx, k); err != nil {
		return err
	}
	copy(st.V, r.vNew)
	r.reset()
	st.Step++
	st.Time = float64(st.Step) * dt
	return nil
}

// linearize 在当前电压处计算膜电流及其导数
func (r *run) linearize(ctx context.Context, k int) error {
	m, st := r.m, r.st
	clear(r.iion)
	clear(r.gion)
	clear(r.iext)
	dv := types.LinearizeDelta
	for si, site := range m.Channels {
		ch := site.Channel
		err := r.parallel(ctx, len(site.Comps), func(lo, hi int) error {
			for j := lo; j < hi; j++ {
				c := site.Comps[j]
				s, p, v := st.Channels[si][j], site.Params[j], st.V[c]
				// mA/cm² -> uA/cm²
				i0 := ch.Current(s, v, p) * 1e3
				i1 := ch.Current(s, v+dv, p) * 1e3
				r.iion[c] += i0
				r.gion[c] += (i1 - i0) / dv
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	err := r.parallel(ctx, len(m.Synapses), func(lo, hi int) error {
		for q := lo; q < hi; q++ {
			syn := m.Synapses[q]
			params := r.synapseParams(q)
			pre, post := st.V[syn.Pre], st.V[syn.Post]
			i0 := syn.Synapse.Current(st.Synapses[q], pre, post, params)
			i1 := syn.Synapse.Current(st.Synapses[q], pre, post+dv, params)
			r.isyn[q] = i0
			r.gsyn[q] = (i1 - i0) / dv
		}
		return nil
	})
	if err != nil {
		return err
	}
	// nA -> uA/cm²
	for q, syn := range m.Synapses {
		scale := 1e5 / r.area[syn.Post]
		r.iion[syn.Post] += r.isyn[q] * scale
		r.gion[syn.Post] += r.gsyn[q] * scale
	}
	for _, s := range m.Stimuli {
		if k < len(s.Current) {
			r.iext[s.Comp] += s.Current[k] * 1e5 / r.area[s.Comp]
		}
	}
	return nil
}

func (r *run) synapseParams(q int) []float64 {
	syn := r.m.Synapses[q]
	if syn.Params != nil {
		return syn.Params
	}
	return mech.Defaults(syn.Synapse.Params())
}

// implicit 以步长 h 组装并求解向后欧拉方程组，结果写入 vNew
func (r *run) implicit(h float64) error {
	m, st, sys := r.m, r.st, r.sys
	for i, p := range m.Topology.Parent {
		c := m.Capacitance[i]
		sys.Diag[i] = 1 + h*(r.gion[i]/c+r.kSum[i])
		sys.RHS[i] = st.V[i] + h*(-r.iion[i]+r.gion[i]*st.V[i]+r.iext[i])/c
		if p == types.Root {
			sys.Upper[i], sys.Lower[i] = 0, 0
			continue
		}
		sys.Upper[i] = -h * r.kUp[i]
		sys.Lower[i] = -h * r.kLow[i]
	}
	return r.linear.Solve(sys, r.vNew)
}

// explicit 显式欧拉
func (r *run) explicit(h float64) {
	m, st := r.m, r.st
	for i := range r.vNew {
		r.vNew[i] = st.V[i] + h*(-r.iion[i]+r.iext[i])/m.Capacitance[i]
	}
	for i, p := range m.Topology.Parent {
		if p == types.Root {
			continue
		}
		d := st.V[p] - st.V[i]
		r.vNew[i] += h * r.kUp[i] * d
		r.vNew[p] -= h * r.kLow[i] * d
	}
}

// advanceStates 推进通道与突触状态并检查有限性
func (r *run) advanceStates(ctx context.Context, k int) error {
	m, st, dt := r.m, r.st, r.opt.Dt
	for si, site := range m.Channels {
		ch := site.Channel
		if len(ch.States()) == 0 {
			continue
		}
		err := r.parallel(ctx, len(site.Comps), func(lo, hi int) error {
			for j := lo; j < hi; j++ {
				c := site.Comps[j]
				s := st.Channels[si][j]
				ch.UpdateStates(s, dt, st.V[c], site.Params[j])
				if q := slices.IndexFunc(s, nonFinite); q >= 0 {
					return &DivergenceError{Step: k, Comp: c, Name: ch.States()[q].Name, Value: s[q]}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for q, syn := range m.Synapses {
		s := st.Synapses[q]
		syn.Synapse.UpdateStates(s, dt, st.V[syn.Pre], st.V[syn.Post], r.synapseParams(q))
		if i := slices.IndexFunc(s, nonFinite); i >= 0 {
			return &DivergenceError{Step: k, Comp: syn.Post, Name: syn.Synapse.States()[i].Name, Value: s[i]}
		}
	}
	return nil
}

func nonFinite(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// reset 允许通道改写求解后的电压
func (r *run) reset() {
	st := r.st
	for si, site := range r.m.Channels {
		rs, ok := site.Channel.(mech.Resetter)
		if !ok {
			continue
		}
		for j, c := range site.Comps {
			st.V[c] = rs.Reset(st.Channels[si][j], r.opt.Dt, st.V[c], site.Params[j])
		}
	}
}

// applyClamps 应用第 t 个记录时刻的钳位值
func (r *run) applyClamps(t int) {
	for i, c := range r.m.Clamps {
		if t < len(c.Values) && !math.IsNaN(c.Values[t]) {
			*r.clamps[i] = c.Values[t]
		}
	}
}

func (r *run) record(res *Result) {
	res.Time = append(res.Time, r.st.Time)
	for i, p := range r.records {
		res.Traces[i] = append(res.Traces[i], *p)
	}
}

func (r *run) finish(res *Result) *Result {
	res.Steps = r.st.Step
	res.State = r.st.Snapshot()
	return res
}
