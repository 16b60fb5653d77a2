package mech

// Leak 被动漏电通道
type Leak struct{ name string }

// NewLeak 创建漏电通道，参数: gLeak(S/cm²)、eLeak(mV)
func NewLeak(name string) *Leak { return &Leak{name: name} }

func (c *Leak) Name() string { return c.name }

func (c *Leak) Params() []Var {
	return []Var{{c.name + "_gLeak", 1e-4}, {c.name + "_eLeak", -70}}
}

func (c *Leak) States() []Var { return nil }

func (c *Leak) UpdateStates(state []float64, dt, v float64, params []float64) {}

func (c *Leak) Current(state []float64, v float64, params []float64) float64 {
	return params[0] * (v - params[1])
}

// HH Hodgkin-Huxley 钠、钾与漏电通道
type HH struct{ name string }

// NewHH 创建 HH 通道
func NewHH(name string) *HH { return &HH{name: name} }

// HH 参数与状态下标
const (
	hhGNa = iota
	hhGK
	hhGLeak
	hhENa
	hhEK
	hhELeak
)

const (
	hhM = iota
	hhH
	hhN
)

func (c *HH) Name() string { return c.name }

func (c *HH) Params() []Var {
	return []Var{
		{c.name + "_gNa", 0.12},
		{c.name + "_gK", 0.036},
		{c.name + "_gLeak", 3e-4},
		{c.name + "_eNa", 50},
		{c.name + "_eK", -77},
		{c.name + "_eLeak", -54.3},
	}
}

func (c *HH) States() []Var {
	return []Var{{c.name + "_m", 0.2}, {c.name + "_h", 0.2}, {c.name + "_n", 0.2}}
}

func (c *HH) UpdateStates(state []float64, dt, v float64, params []float64) {
	am, bm := hhMGate(v)
	ah, bh := hhHGate(v)
	an, bn := hhNGate(v)
	state[hhM] = SolveGateExponential(state[hhM], dt, am, bm)
	state[hhH] = SolveGateExponential(state[hhH], dt, ah, bh)
	state[hhN] = SolveGateExponential(state[hhN], dt, an, bn)
}

func (c *HH) Current(state []float64, v float64, params []float64) float64 {
	m, h, n := state[hhM], state[hhH], state[hhN]
	na := params[hhGNa] * m * m * m * h * (v - params[hhENa])
	k := params[hhGK] * n * n * n * n * (v - params[hhEK])
	leak := params[hhGLeak] * (v - params[hhELeak])
	return na + k + leak
}

// InitStates 门控变量取稳态值
func (c *HH) InitStates(state []float64, v float64, params []float64) {
	for i, gate := range []func(float64) (float64, float64){hhMGate, hhHGate, hhNGate} {
		a, b := gate(v)
		state[i] = a / (a + b)
	}
}

func hhMGate(v float64) (alpha, beta float64) {
	return 0.1 * vtrap(-(v+40), 10), 4.0 * SaveExp(-(v+65)/18)
}

func hhHGate(v float64) (alpha, beta float64) {
	return 0.07 * SaveExp(-(v+65)/20), 1.0 / (SaveExp(-(v+35)/10) + 1)
}

func hhNGate(v float64) (alpha, beta float64) {
	return 0.01 * vtrap(-(v+55), 10), 0.125 * SaveExp(-(v+65)/80)
}

// LIF 漏积分发放，电压超过阈值时重置，自身不产生膜电流
type LIF struct{ name string }

// NewLIF 创建 LIF 通道，参数: g(1/ms)、vth(mV)、vreset(mV)
func NewLIF(name string) *LIF { return &LIF{name: name} }

func (c *LIF) Name() string { return c.name }

func (c *LIF) Params() []Var {
	return []Var{{c.name + "_g", 0.1}, {c.name + "_vth", -20}, {c.name + "_vreset", -70}}
}

func (c *LIF) States() []Var { return nil }

func (c *LIF) UpdateStates(state []float64, dt, v float64, params []float64) {}

func (c *LIF) Current(state []float64, v float64, params []float64) float64 { return 0 }

// Reset 超过阈值重置为 vreset，否则向 vreset 衰减一步
func (c *LIF) Reset(state []float64, dt, v float64, params []float64) float64 {
	g, vth, vreset := params[0], params[1], params[2]
	if v >= vth {
		return vreset
	}
	return v - g*(v-vreset)*dt
}
