package mech

import "math"

// Ionotropic 离子型突触，状态 c 随突触前电压趋向 s_bar
type Ionotropic struct{ name string }

// NewIonotropic 创建离子型突触，参数: gC(uS)
func NewIonotropic(name string) *Ionotropic { return &Ionotropic{name: name} }

// 离子型突触常量
const (
	ionoVth    = -35.0      // 激活阈值(mV)
	ionoDelta  = 10.0       // 激活斜率(mV)
	ionoKMinus = 1.0 / 40.0 // 解离速率(1/ms)
)

func (s *Ionotropic) Name() string { return s.name }

func (s *Ionotropic) Params() []Var { return []Var{{s.name + "_gC", 1e-4}} }

func (s *Ionotropic) States() []Var { return []Var{{s.name + "_c", 0.2}} }

func (s *Ionotropic) UpdateStates(state []float64, dt, pre, post float64, params []float64) {
	sBar := 1 / (1 + SaveExp((ionoVth-pre)/ionoDelta))
	tau := (1 - sBar) / ionoKMinus
	state[0] = SolveInfGateExponential(state[0], dt, sBar, tau)
}

func (s *Ionotropic) Current(state []float64, pre, post float64, params []float64) float64 {
	return params[0] * state[0] * post
}

// TanhRate 无状态速率突触
type TanhRate struct{ name string }

// NewTanhRate 创建速率突触，参数: gS、x_offset(mV)、slope
func NewTanhRate(name string) *TanhRate { return &TanhRate{name: name} }

func (s *TanhRate) Name() string { return s.name }

func (s *TanhRate) Params() []Var {
	return []Var{{s.name + "_gS", 1e-4}, {s.name + "_x_offset", -70}, {s.name + "_slope", 1}}
}

func (s *TanhRate) States() []Var { return nil }

func (s *TanhRate) UpdateStates(state []float64, dt, pre, post float64, params []float64) {}

func (s *TanhRate) Current(state []float64, pre, post float64, params []float64) float64 {
	return -params[0] * math.Tanh((pre-params[1])*params[2])
}

// TanhConductance 电流受突触后电压影响的速率突触
type TanhConductance struct{ name string }

// NewTanhConductance 创建电导型速率突触，参数: gS、e_syn(mV)、x_offset(mV)、slope
func NewTanhConductance(name string) *TanhConductance { return &TanhConductance{name: name} }

func (s *TanhConductance) Name() string { return s.name }

func (s *TanhConductance) Params() []Var {
	return []Var{
		{s.name + "_gS", 1e-4},
		{s.name + "_e_syn", 0},
		{s.name + "_x_offset", -70},
		{s.name + "_slope", 1},
	}
}

func (s *TanhConductance) States() []Var { return nil }

func (s *TanhConductance) UpdateStates(state []float64, dt, pre, post float64, params []float64) {}

func (s *TanhConductance) Current(state []float64, pre, post float64, params []float64) float64 {
	return math.Tanh((pre-params[2])*params[3]) * params[0] * (post - params[1])
}
