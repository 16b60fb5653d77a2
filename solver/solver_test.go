package solver

import (
	"cable/graph"
	"cable/maths"
	"cable/mech"
	"cable/morph"
	"cable/types"
	"context"
	"errors"
	"math"
	"slices"
	"testing"
)

func branch(length, radius float64, parent int) morph.RawBranch {
	return morph.RawBranch{
		Samples:    []morph.Sample{{Radius: radius}, {X: length, Radius: radius}},
		SegLengths: []float64{length},
		Length:     length,
		Type:       types.TypeAxon,
		Parent:     parent,
	}
}

func assemble(t *testing.T, ncomp int, branches ...morph.RawBranch) *graph.Topology {
	t.Helper()
	top, err := graph.Assemble(branches, []int{ncomp}, 0)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return top
}

func allComps(top *graph.Topology) []int {
	c := make([]int, top.NumComps())
	for i := range c {
		c[i] = i
	}
	return c
}

// insert 在所有舱室插入通道
func insert(m *Model, ch mech.Channel, params ...[]float64) {
	comps := allComps(m.Topology)
	p := mech.Defaults(ch.Params())
	if len(params) > 0 {
		p = params[0]
	}
	site := ChannelSite{Channel: ch, Comps: comps, Params: make([][]float64, len(comps))}
	for j := range comps {
		site.Params[j] = slices.Clone(p)
	}
	m.Channels = append(m.Channels, site)
}

func recordAll(m *Model) {
	for c := range m.Topology.NumComps() {
		m.Recordings = append(m.Recordings, Recording{Comp: c, Name: types.StateVoltage})
	}
}

func pulse(amp, dur, dt float64) []float64 {
	return slices.Repeat([]float64{amp}, int(dur/dt))
}

// TestPropagationDelay 动作电位到达时间随距离单调增加
func TestPropagationDelay(t *testing.T) {
	top := assemble(t, 8, branch(200, 1, types.Root))
	m := NewModel(top)
	for i := range m.AxialResistivity {
		m.AxialResistivity[i] = 100
		m.Voltage[i] = -65
	}
	insert(m, mech.NewHH("HH"))
	recordAll(m)
	opt := DefaultOptions()
	opt.TMax = 10
	opt.InitStates = true
	m.Stimuli = []Stimulus{{Comp: 0, Current: pulse(1, 1, opt.Dt)}}
	res, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if len(res.Time) != res.Steps+1 || res.Steps != 400 {
		t.Fatalf("unexpected record length %d / %d steps", len(res.Time), res.Steps)
	}
	prev := -1.0
	for c, trace := range res.Traces {
		k := slices.IndexFunc(trace, func(v float64) bool { return v > 0 })
		if k < 0 {
			t.Fatalf("compartment %d never crossed 0 mV", c)
		}
		if res.Time[k] < prev {
			t.Errorf("compartment %d fired at %g ms, before its neighbour at %g ms", c, res.Time[k], prev)
		}
		prev = res.Time[k]
	}
	if prev <= res.Time[slices.IndexFunc(res.Traces[0], func(v float64) bool { return v > 0 })] {
		t.Errorf("far end must fire after the stimulated end")
	}
}

// TestPassiveDelay 无源电缆上电压峰值时刻随距离单调推迟
func TestPassiveDelay(t *testing.T) {
	top := assemble(t, 20, branch(400, 1, types.Root))
	m := NewModel(top)
	for i := range m.AxialResistivity {
		m.AxialResistivity[i] = 1000
	}
	insert(m, mech.NewLeak("Leak"))
	recordAll(m)
	opt := DefaultOptions()
	opt.TMax = 15
	m.Stimuli = []Stimulus{{Comp: 0, Current: pulse(0.05, 2, opt.Dt)}}
	res, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	peaks := make([]float64, len(res.Traces))
	for c, trace := range res.Traces {
		peaks[c] = res.Time[slices.Index(trace, slices.Max(trace))]
	}
	for c := 1; c < len(peaks); c++ {
		if peaks[c] < peaks[c-1] {
			t.Errorf("compartment %d peaked at %g ms, before its neighbour at %g ms", c, peaks[c], peaks[c-1])
		}
	}
	if peaks[len(peaks)-1] <= peaks[0] {
		t.Errorf("far end must peak after the stimulated end: %v", peaks)
	}
	if amp := slices.Max(res.Traces[0]) - res.Traces[0][0]; !(amp > 0) {
		t.Errorf("stimulus had no effect on compartment 0")
	}
}

// yModel 分叉模型，HH 通道与外部电流
func yModel(t *testing.T) *Model {
	top := assemble(t, 5, branch(100, 1, types.Root), branch(80, 0.6, 0), branch(120, 0.4, 0))
	m := NewModel(top)
	for i := range m.AxialResistivity {
		m.AxialResistivity[i] = 150
	}
	insert(m, mech.NewHH("HH"))
	recordAll(m)
	m.Stimuli = []Stimulus{{Comp: 2, Current: pulse(0.5, 1, types.DefaultTimeStep)}}
	return m
}

// TestBackendsAgree 树消元与稠密、稀疏 LU 的轨迹一致
func TestBackendsAgree(t *testing.T) {
	m := yModel(t)
	opt := DefaultOptions()
	opt.TMax = 5
	opt.InitStates = true
	tree, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("tree backend failed: %v", err)
	}
	var last *Result
	for _, b := range []maths.Backend{maths.BackendDense, maths.BackendSparse} {
		opt.Backend = b
		res, err := Integrate(context.Background(), m, opt)
		if err != nil {
			t.Fatalf("%v backend failed: %v", b, err)
		}
		for r := range tree.Traces {
			for k := range tree.Traces[r] {
				if d := math.Abs(tree.Traces[r][k] - res.Traces[r][k]); d > 1e-6 {
					t.Fatalf("%v: %s at %g ms differs by %g", b, tree.Labels[r], tree.Time[k], d)
				}
			}
		}
		last = res
	}
	if tree.RunID == last.RunID {
		t.Errorf("each run needs its own id")
	}
}

// TestWorkersDeterministic 并行计算结果与串行一致
func TestWorkersDeterministic(t *testing.T) {
	top := assemble(t, 300, branch(3000, 1, types.Root))
	m := NewModel(top)
	insert(m, mech.NewHH("HH"))
	m.Recordings = []Recording{{Comp: 150, Name: "HH_m"}, {Comp: 0, Name: types.StateVoltage}}
	m.Stimuli = []Stimulus{{Comp: 0, Current: pulse(1, 1, types.DefaultTimeStep)}}
	opt := DefaultOptions()
	opt.TMax = 2
	opt.Workers = 1
	serial, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("serial run failed: %v", err)
	}
	opt.Workers = 4
	parallel, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("parallel run failed: %v", err)
	}
	for r := range serial.Traces {
		if !slices.Equal(serial.Traces[r], parallel.Traces[r]) {
			t.Errorf("%s differs between serial and parallel runs", serial.Labels[r])
		}
	}
}

// passiveModel 被动电缆
func passiveModel(t *testing.T) *Model {
	top := assemble(t, 10, branch(300, 1, types.Root))
	m := NewModel(top)
	for i := range m.AxialResistivity {
		m.AxialResistivity[i] = 1000
	}
	insert(m, mech.NewLeak("Leak"))
	recordAll(m)
	m.Stimuli = []Stimulus{{Comp: 0, Current: pulse(0.05, 5, 0.01)}}
	return m
}

// TestMethodsClose 三种步进方法在小步长下接近
func TestMethodsClose(t *testing.T) {
	m := passiveModel(t)
	results := map[Method]*Result{}
	for _, method := range []Method{BackwardEuler, CrankNicolson, ForwardEuler} {
		opt := DefaultOptions()
		opt.Dt = 0.01
		opt.TMax = 10
		opt.Method = method
		res, err := Integrate(context.Background(), m, opt)
		if err != nil {
			t.Fatalf("%v failed: %v", method, err)
		}
		results[method] = res
	}
	be := results[BackwardEuler]
	if peak := slices.Max(be.Traces[0]); peak < -69 {
		t.Fatalf("stimulus had no effect, peak %g", peak)
	}
	for _, method := range []Method{CrankNicolson, ForwardEuler} {
		res := results[method]
		for r := range be.Traces {
			for k := range be.Traces[r] {
				if d := math.Abs(be.Traces[r][k] - res.Traces[r][k]); d > 0.5 {
					t.Fatalf("%v: %s at %g ms differs from backward Euler by %g", method, be.Labels[r], be.Time[k], d)
				}
			}
		}
	}
}

// TestRestingState 漏电反转电位处保持静息
func TestRestingState(t *testing.T) {
	m := passiveModel(t)
	m.Stimuli = nil
	opt := DefaultOptions()
	opt.TMax = 5
	res, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	for _, v := range res.State.V {
		if math.Abs(v+70) > 1e-9 {
			t.Fatalf("resting voltage drifted to %g", v)
		}
	}
}

// blowUp 状态每步放大，用于触发发散
type blowUp struct{}

func (blowUp) Name() string       { return "Bad" }
func (blowUp) Params() []mech.Var { return nil }
func (blowUp) States() []mech.Var { return []mech.Var{{Name: "Bad_x", Value: 1}} }
func (blowUp) UpdateStates(state []float64, dt, v float64, params []float64) {
	state[0] *= 1e300
}
func (blowUp) Current(state []float64, v float64, params []float64) float64 { return 0 }

// TestDivergence 非有限状态终止仿真并返回部分结果
func TestDivergence(t *testing.T) {
	m := passiveModel(t)
	insert(m, blowUp{})
	opt := DefaultOptions()
	opt.TMax = 1
	res, err := Integrate(context.Background(), m, opt)
	if !errors.Is(err, types.ErrNumericalDivergence) {
		t.Fatalf("expected divergence, got %v", err)
	}
	var de *DivergenceError
	if !errors.As(err, &de) || de.Step != 1 || de.Name != "Bad_x" {
		t.Fatalf("unexpected divergence error %#v", de)
	}
	if res == nil || res.Steps != 1 || len(res.Time) != 2 {
		t.Fatalf("partial result expected, got %+v", res)
	}
}

// TestCancel 取消时返回已完成的记录
func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opt := DefaultOptions()
	opt.TMax = 1
	res, err := Integrate(ctx, passiveModel(t), opt)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.Steps != 0 || len(res.Time) != 1 {
		t.Fatalf("partial result expected, got %+v", res)
	}
}

// TestInvalidConfiguration 配置错误
func TestInvalidConfiguration(t *testing.T) {
	ctx := context.Background()
	opt := DefaultOptions()
	opt.Dt = 0
	if _, err := Integrate(ctx, passiveModel(t), opt); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("dt 0 must fail, got %v", err)
	}
	opt = DefaultOptions()
	opt.TMax = -1
	if _, err := Integrate(ctx, passiveModel(t), opt); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("negative t_max must fail, got %v", err)
	}
	m := passiveModel(t)
	m.Recordings = append(m.Recordings, Recording{Comp: 0, Name: "HH_m"})
	if _, err := Integrate(ctx, m, DefaultOptions()); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("unknown state must fail, got %v", err)
	}
	m = passiveModel(t)
	m.Stimuli = append(m.Stimuli, Stimulus{Comp: 99})
	if _, err := Integrate(ctx, m, DefaultOptions()); !errors.Is(err, types.ErrIndex) {
		t.Errorf("out of range stimulus must fail, got %v", err)
	}
	if _, err := ParseMethod("rk4"); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("unknown method must fail, got %v", err)
	}
}

// TestClamp 电压钳位
func TestClamp(t *testing.T) {
	m := passiveModel(t)
	m.Stimuli = nil
	opt := DefaultOptions()
	opt.TMax = 2
	n := 81
	m.Clamps = []Clamp{{Comp: 5, Name: types.StateVoltage, Values: slices.Repeat([]float64{-20}, n)}}
	res, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	for k, v := range res.Traces[5] {
		if v != -20 {
			t.Fatalf("clamped voltage at step %d is %g", k, v)
		}
	}
	if res.Traces[4][n-1] <= -70 || res.Traces[6][n-1] <= -70 {
		t.Errorf("neighbours must depolarize towards the clamp")
	}
}

// TestLIF 超过阈值后重置
func TestLIF(t *testing.T) {
	top := assemble(t, 1, branch(10, 5, types.Root))
	m := NewModel(top)
	insert(m, mech.NewLIF("LIF"))
	recordAll(m)
	opt := DefaultOptions()
	opt.TMax = 20
	m.Stimuli = []Stimulus{{Comp: 0, Current: pulse(2, 20, opt.Dt)}}
	res, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	resets := 0
	for k := 1; k < len(res.Traces[0]); k++ {
		if res.Traces[0][k] == -70 && res.Traces[0][k-1] > -70 {
			resets++
		}
		if res.Traces[0][k] > -20+50 {
			t.Fatalf("voltage escaped the threshold: %g", res.Traces[0][k])
		}
	}
	if resets == 0 {
		t.Errorf("expected at least one reset")
	}
}

// TestSynapse 突触前去极化驱动突触后舱室
func TestSynapse(t *testing.T) {
	top := assemble(t, 2, branch(10, 5, types.Root))
	m := NewModel(top)
	m.AxialResistivity = []float64{1e9, 1e9}
	insert(m, mech.NewLeak("Leak"))
	m.Voltage[0] = -20
	m.Clamps = []Clamp{{Comp: 0, Name: types.StateVoltage, Values: slices.Repeat([]float64{-20}, 41)}}
	m.Synapses = []SynapseSite{{Synapse: mech.NewTanhRate("syn"), Pre: 0, Post: 1, Params: []float64{1e-2, -70, 1}}}
	recordAll(m)
	opt := DefaultOptions()
	opt.TMax = 1
	res, err := Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if last := res.Traces[1][len(res.Traces[1])-1]; last <= -69 {
		t.Errorf("post-synaptic compartment should depolarize, got %g", last)
	}
	snap := res.State.Snapshot()
	snap.V[0] = 0
	if res.State.V[0] == 0 {
		t.Errorf("snapshot must be a deep copy")
	}
}
