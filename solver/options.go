package solver

import (
	"cable/maths"
	"cable/types"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/google/uuid"
)

// Method 时间步进方法
type Method int

const (
	BackwardEuler Method = iota // 向后欧拉(默认)
	CrankNicolson               // 半步向后欧拉外推
	ForwardEuler                // 显式欧拉
)

// String 方法名称
func (m Method) String() string {
	switch m {
	case BackwardEuler:
		return "backward-euler"
	case CrankNicolson:
		return "crank-nicolson"
	case ForwardEuler:
		return "forward-euler"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod 通过名称获取方法
func ParseMethod(name string) (Method, error) {
	for _, m := range []Method{BackwardEuler, CrankNicolson, ForwardEuler} {
		if m.String() == name {
			return m, nil
		}
	}
	return BackwardEuler, fmt.Errorf("未知步进方法 %q: %w", name, types.ErrConfiguration)
}

// Options 仿真配置
type Options struct {
	Dt         float64       // 时间步长(ms)
	TMax       float64       // 仿真时长(ms)
	Method     Method        // 步进方法
	Backend    maths.Backend // 线性求解后端
	Workers    int           // 并行计算的协程数，<=0 使用 GOMAXPROCS
	InitStates bool          // 以初始电压的稳态初始化通道状态
	Logger     *slog.Logger  // 日志，nil 使用默认
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{Dt: types.DefaultTimeStep, Method: BackwardEuler, Backend: maths.BackendTree}
}

// steps 步数，TMax 不是 Dt 的整数倍时向下取整
func (opt Options) steps() (int, error) {
	if !(opt.Dt > 0) || math.IsInf(opt.Dt, 0) {
		return 0, fmt.Errorf("时间步长必须为正，得到 %g: %w", opt.Dt, types.ErrConfiguration)
	}
	if !(opt.TMax >= 0) || math.IsInf(opt.TMax, 0) {
		return 0, fmt.Errorf("仿真时长不能为负，得到 %g: %w", opt.TMax, types.ErrConfiguration)
	}
	return int(math.Floor(opt.TMax/opt.Dt + 1e-9)), nil
}

func (opt Options) workers() int {
	if opt.Workers > 0 {
		return opt.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Result 仿真结果
type Result struct {
	RunID  uuid.UUID   // 本次仿真标识
	Dt     float64     // 时间步长(ms)
	Time   []float64   // 记录时刻，含初始时刻
	Labels []string    // 每条记录的名称
	Traces [][]float64 // 记录 -> 时刻 -> 值
	Steps  int         // 完成的步数
	State  *State      // 结束时的状态快照
}

// DivergenceError 电压或状态出现非有限值
type DivergenceError struct {
	Step  int
	Comp  int
	Name  string
	Value float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("第 %d 步舱室 %d 的 %s 出现非有限值 %g: %s", e.Step, e.Comp, e.Name, e.Value, types.ErrNumericalDivergence)
}

// Unwrap 支持 errors.Is(err, types.ErrNumericalDivergence)
func (e *DivergenceError) Unwrap() error { return types.ErrNumericalDivergence }
