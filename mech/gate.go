package mech

import "math"

// MaxExp 指数函数的输入上限
const MaxExp = 20.0

// SaveExp 输入截断到 MaxExp 的指数函数
func SaveExp(x float64) float64 { return math.Exp(math.Min(x, MaxExp)) }

// ExponentialEuler 指数欧拉法推进 dx/dt = (xInf - x) / tau
func ExponentialEuler(x, dt, xInf, tau float64) float64 {
	e := SaveExp(-dt / tau)
	return x*e + xInf*(1-e)
}

// SolveGateExponential 由速率 alpha、beta 指数推进门控变量
func SolveGateExponential(x, dt, alpha, beta float64) float64 {
	tau := 1 / (alpha + beta)
	return ExponentialEuler(x, dt, alpha*tau, tau)
}

// SolveGateImplicit 由速率 alpha、beta 隐式推进门控变量
func SolveGateImplicit(x, dt, alpha, beta float64) float64 {
	return (x + dt*alpha) / (1 + dt*alpha + dt*beta)
}

// SolveInfGateExponential 由稳态值与时间常数指数推进门控变量
func SolveInfGateExponential(x, dt, xInf, tau float64) float64 {
	e := SaveExp(-dt / tau)
	return x*e + xInf*(1-e)
}

// vtrap x / (exp(x/y) - 1)，在 x 趋近 0 时取极限
func vtrap(x, y float64) float64 {
	if math.Abs(x/y) < 1e-6 {
		return y * (1 - x/y/2)
	}
	return x / (SaveExp(x/y) - 1)
}
