package maths

import (
	"cable/types"
	"fmt"
	"math"
)

// TreeSystem 树结构稀疏线性方程组 A x = b
//
// 对每个非根节点 i，p = Parent[i]:
//
//	A[i][i] = Diag[i]
//	A[i][p] = Upper[i]  (节点行对父节点的耦合)
//	A[p][i] = Lower[i]  (父节点行对子节点的耦合)
type TreeSystem struct {
	Parent []int // 父节点，types.Root 为根
	Order  []int // 父先子后的节点顺序
	Diag   []float64
	Upper  []float64
	Lower  []float64
	RHS    []float64
}

// NewTreeSystem 按拓扑创建方程组，系数全部为零
func NewTreeSystem(parent, order []int) *TreeSystem {
	n := len(parent)
	return &TreeSystem{
		Parent: parent,
		Order:  order,
		Diag:   make([]float64, n),
		Upper:  make([]float64, n),
		Lower:  make([]float64, n),
		RHS:    make([]float64, n),
	}
}

// Dim 方程组维度
func (sys *TreeSystem) Dim() int { return len(sys.Parent) }

// MulVec 计算 A x，用于残差检查
func (sys *TreeSystem) MulVec(x []float64) []float64 {
	y := make([]float64, sys.Dim())
	for i, p := range sys.Parent {
		y[i] += sys.Diag[i] * x[i]
		if p == types.Root {
			continue
		}
		y[i] += sys.Upper[i] * x[p]
		y[p] += sys.Lower[i] * x[i]
	}
	return y
}

// treeSolver 沿求解顺序消元，O(n)
type treeSolver struct {
	diag []float64
	rhs  []float64
}

// Solve 叶到根消元，再根到叶回代
func (s *treeSolver) Solve(sys *TreeSystem, x []float64) error {
	n := sys.Dim()
	if len(x) != n || len(sys.Order) != n {
		return fmt.Errorf("方程组维度不一致 %d/%d/%d: %w", n, len(x), len(sys.Order), types.ErrConfiguration)
	}
	if cap(s.diag) < n {
		s.diag = make([]float64, n)
		s.rhs = make([]float64, n)
	}
	diag, rhs := s.diag[:n], s.rhs[:n]
	copy(diag, sys.Diag)
	copy(rhs, sys.RHS)
	// 叶到根
	for k := n - 1; k > 0; k-- {
		i := sys.Order[k]
		p := sys.Parent[i]
		if diag[i] == 0 {
			return fmt.Errorf("节点 %d 主元为零: %w", i, types.ErrNumericalDivergence)
		}
		f := sys.Lower[i] / diag[i]
		diag[p] -= f * sys.Upper[i]
		rhs[p] -= f * rhs[i]
	}
	root := sys.Order[0]
	if diag[root] == 0 {
		return fmt.Errorf("根节点 %d 主元为零: %w", root, types.ErrNumericalDivergence)
	}
	x[root] = rhs[root] / diag[root]
	// 根到叶
	for k := 1; k < n; k++ {
		i := sys.Order[k]
		x[i] = (rhs[i] - sys.Upper[i]*x[sys.Parent[i]]) / diag[i]
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("节点 %d 解非有限: %w", i, types.ErrNumericalDivergence)
		}
	}
	return nil
}
