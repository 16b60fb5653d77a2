package maths

import (
	"cable/types"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// denseSolver 组装稠密矩阵后 LU 分解，作为参考实现
type denseSolver struct {
	a  *mat.Dense
	lu mat.LU
}

// Solve 稠密 LU 求解
func (s *denseSolver) Solve(sys *TreeSystem, x []float64) error {
	n := sys.Dim()
	if len(x) != n {
		return fmt.Errorf("方程组维度不一致 %d/%d: %w", n, len(x), types.ErrConfiguration)
	}
	if s.a == nil || s.a.RawMatrix().Rows != n {
		s.a = mat.NewDense(n, n, nil)
	} else {
		s.a.Zero()
	}
	for i, p := range sys.Parent {
		s.a.Set(i, i, sys.Diag[i])
		if p == types.Root {
			continue
		}
		s.a.Set(i, p, sys.Upper[i])
		s.a.Set(p, i, sys.Lower[i])
	}
	s.lu.Factorize(s.a)
	b := mat.NewVecDense(n, append([]float64(nil), sys.RHS...))
	dst := mat.NewVecDense(n, x)
	if err := s.lu.SolveVecTo(dst, false, b); err != nil {
		return fmt.Errorf("稠密 LU 求解失败: %w: %w", err, types.ErrNumericalDivergence)
	}
	return nil
}
