package maths

import (
	"cable/types"
	"fmt"
	"math"
	"slices"
)

// dropTolerance 绝对值低于该值的元素不存储
const dropTolerance = 1e-16

// sparseRow 按列号有序存储的非零元素
type sparseRow struct {
	cols []int
	vals []float64
}

func (r *sparseRow) get(col int) float64 {
	if i, ok := slices.BinarySearch(r.cols, col); ok {
		return r.vals[i]
	}
	return 0
}

// set 值接近零时删除元素，维持稀疏性
func (r *sparseRow) set(col int, v float64) {
	i, ok := slices.BinarySearch(r.cols, col)
	switch {
	case ok && math.Abs(v) < dropTolerance:
		r.cols = slices.Delete(r.cols, i, i+1)
		r.vals = slices.Delete(r.vals, i, i+1)
	case ok:
		r.vals[i] = v
	case !(math.Abs(v) < dropTolerance):
		r.cols = slices.Insert(r.cols, i, col)
		r.vals = slices.Insert(r.vals, i, v)
	}
}

func (r *sparseRow) reset() {
	r.cols = r.cols[:0]
	r.vals = r.vals[:0]
}

// sparseSolver 按行稀疏存储的 LU 分解(PA = LU，部分主元)。
// 树形方程组按求解顺序重排后填充很少，适合规模较大的模型。
type sparseSolver struct {
	n    int
	perm []int // 求解顺序中的位置 -> 舱室
	pos  []int // 舱室 -> 求解顺序中的位置
	L, U []sparseRow
	P    []int   // 分解后第 i 行对应的原始行
	cols [][]int // 每列在 U 中含非零元素的行
	y    []float64
}

// setU 写入 U 并维护列索引
func (s *sparseSolver) setU(i, j int, v float64) {
	row := &s.U[i]
	_, had := slices.BinarySearch(row.cols, j)
	row.set(j, v)
	_, has := slices.BinarySearch(row.cols, j)
	switch {
	case has && !had:
		s.cols[j] = append(s.cols[j], i)
	case had && !has:
		if k := slices.Index(s.cols[j], i); k >= 0 {
			s.cols[j] = slices.Delete(s.cols[j], k, k+1)
		}
	}
}

// relabel 把列索引中的行 from 改为 to
func (s *sparseSolver) relabel(row sparseRow, from, to int) {
	for _, j := range row.cols {
		if k := slices.Index(s.cols[j], from); k >= 0 {
			s.cols[j][k] = to
		}
	}
}

// swap 交换第 a、b 行
func (s *sparseSolver) swap(a, b int) {
	s.relabel(s.U[a], a, -1)
	s.relabel(s.U[b], b, a)
	s.relabel(s.U[a], -1, b)
	s.U[a], s.U[b] = s.U[b], s.U[a]
	s.L[a], s.L[b] = s.L[b], s.L[a]
	s.P[a], s.P[b] = s.P[b], s.P[a]
}

func (s *sparseSolver) init(sys *TreeSystem) {
	n := sys.Dim()
	if s.n != n {
		s.n = n
		s.pos = make([]int, n)
		s.L = make([]sparseRow, n)
		s.U = make([]sparseRow, n)
		s.P = make([]int, n)
		s.cols = make([][]int, n)
		s.y = make([]float64, n)
	}
	// 叶到根的顺序消元不产生填充
	s.perm = slices.Clone(sys.Order)
	slices.Reverse(s.perm)
	for k, g := range s.perm {
		s.pos[g] = k
	}
	for i := range n {
		s.L[i].reset()
		s.U[i].reset()
		s.P[i] = i
		s.cols[i] = s.cols[i][:0]
	}
	for i, p := range sys.Parent {
		s.setU(s.pos[i], s.pos[i], sys.Diag[i])
		if p == types.Root {
			continue
		}
		s.setU(s.pos[i], s.pos[p], sys.Upper[i])
		s.setU(s.pos[p], s.pos[i], sys.Lower[i])
	}
}

// decompose 逐列高斯消元，只访问列索引中的行
func (s *sparseSolver) decompose() error {
	var below []int
	for k := range s.n {
		below = below[:0]
		for _, i := range s.cols[k] {
			if i > k {
				below = append(below, i)
			}
		}
		maxRow := k
		maxAbs := math.Abs(s.U[k].get(k))
		for _, i := range below {
			if v := math.Abs(s.U[i].get(k)); v > maxAbs {
				maxAbs, maxRow = v, i
			}
		}
		if maxAbs == 0 || math.IsNaN(maxAbs) {
			return fmt.Errorf("第 %d 列主元为零: %w", k, types.ErrNumericalDivergence)
		}
		if maxRow != k {
			// 原第 k 行换到 maxRow，below 中的行集合不变
			s.swap(k, maxRow)
		}
		pivot := &s.U[k]
		pv := pivot.get(k)
		for _, i := range below {
			vik := s.U[i].get(k)
			if vik == 0 {
				continue
			}
			f := vik / pv
			s.L[i].set(k, f)
			s.setU(i, k, 0)
			for idx, j := range pivot.cols {
				if j <= k {
					continue
				}
				s.setU(i, j, s.U[i].get(j)-f*pivot.vals[idx])
			}
		}
	}
	return nil
}

// Solve 分解后前向、后向替换
func (s *sparseSolver) Solve(sys *TreeSystem, x []float64) error {
	n := sys.Dim()
	if len(x) != n {
		return fmt.Errorf("方程组维度不一致 %d/%d: %w", n, len(x), types.ErrConfiguration)
	}
	s.init(sys)
	if err := s.decompose(); err != nil {
		return err
	}
	for i := range n {
		sum := sys.RHS[s.perm[s.P[i]]]
		for idx, j := range s.L[i].cols {
			if j < i {
				sum -= s.L[i].vals[idx] * s.y[j]
			}
		}
		s.y[i] = sum
	}
	for i := n - 1; i >= 0; i-- {
		sum := s.y[i]
		for idx, j := range s.U[i].cols {
			if j > i {
				sum -= s.U[i].vals[idx] * x[s.perm[j]]
			}
		}
		v := sum / s.U[i].get(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("舱室 %d 的解为 %g: %w", s.perm[i], v, types.ErrNumericalDivergence)
		}
		x[s.perm[i]] = v
	}
	return nil
}
