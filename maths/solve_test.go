package maths

import (
	"cable/types"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// randomTree 生成随机树方程组，父节点下标总小于子节点
func randomTree(n int, rng *rand.Rand) *TreeSystem {
	parent := make([]int, n)
	parent[0] = types.Root
	children := make([][]int, n)
	for i := 1; i < n; i++ {
		parent[i] = rng.Intn(i)
		children[parent[i]] = append(children[parent[i]], i)
	}
	order := []int{0}
	for k := 0; k < len(order); k++ {
		order = append(order, children[order[k]]...)
	}
	sys := NewTreeSystem(parent, order)
	for i := range n {
		sys.Diag[i] = 1
		sys.RHS[i] = rng.Float64()*2 - 1
	}
	for i := 1; i < n; i++ {
		up, low := rng.Float64(), rng.Float64()
		sys.Upper[i], sys.Lower[i] = -up, -low
		// 对角占优
		sys.Diag[i] += up
		sys.Diag[parent[i]] += low
	}
	return sys
}

// TestTreeMatchesLU 树消元与稠密、稀疏 LU 结果一致
func TestTreeMatchesLU(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tree, err := NewLinearSolver(BackendTree)
	if err != nil {
		t.Fatalf("NewLinearSolver failed: %v", err)
	}
	for _, b := range []Backend{BackendDense, BackendSparse} {
		ref, err := NewLinearSolver(b)
		if err != nil {
			t.Fatalf("NewLinearSolver(%v) failed: %v", b, err)
		}
		for _, n := range []int{1, 2, 7, 64, 300} {
			sys := randomTree(n, rng)
			xt := make([]float64, n)
			xr := make([]float64, n)
			if err := tree.Solve(sys, xt); err != nil {
				t.Fatalf("n=%d tree solve failed: %v", n, err)
			}
			if err := ref.Solve(sys, xr); err != nil {
				t.Fatalf("n=%d %v solve failed: %v", n, b, err)
			}
			ax := sys.MulVec(xt)
			for i := range n {
				if math.Abs(xt[i]-xr[i]) > 1e-10 {
					t.Errorf("n=%d node %d: tree %g, %v %g", n, i, xt[i], b, xr[i])
				}
				if math.Abs(ax[i]-sys.RHS[i]) > 1e-10 {
					t.Errorf("n=%d node %d residual %g", n, i, ax[i]-sys.RHS[i])
				}
			}
		}
	}
}

// TestSparseFill 叶到根顺序分解不产生填充
func TestSparseFill(t *testing.T) {
	sys := randomTree(50, rand.New(rand.NewSource(3)))
	s := &sparseSolver{}
	if err := s.Solve(sys, make([]float64, 50)); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	nnz := 0
	for i := range s.U {
		nnz += len(s.U[i].cols) + len(s.L[i].cols)
	}
	if nnz > 3*50 {
		t.Errorf("factors hold %d entries, expected at most %d", nnz, 3*50)
	}
}

// TestTreeSolveReuse 求解不修改方程组，可重复使用
func TestTreeSolveReuse(t *testing.T) {
	sys := randomTree(20, rand.New(rand.NewSource(2)))
	diag := append([]float64(nil), sys.Diag...)
	solver, _ := NewLinearSolver(BackendTree)
	x1 := make([]float64, 20)
	x2 := make([]float64, 20)
	if err := solver.Solve(sys, x1); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if err := solver.Solve(sys, x2); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	for i := range x1 {
		if x1[i] != x2[i] || diag[i] != sys.Diag[i] {
			t.Fatalf("solve must not modify the system")
		}
	}
}

// TestTreeSingular 零主元报告发散
func TestTreeSingular(t *testing.T) {
	sys := NewTreeSystem([]int{types.Root, 0}, []int{0, 1})
	sys.RHS[0] = 1
	solver, _ := NewLinearSolver(BackendTree)
	if err := solver.Solve(sys, make([]float64, 2)); !errors.Is(err, types.ErrNumericalDivergence) {
		t.Errorf("expected ErrNumericalDivergence, got %v", err)
	}
	if _, err := ParseBackend("cholesky"); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("unknown backend must fail, got %v", err)
	}
	if b, err := ParseBackend("sparse"); err != nil || b != BackendSparse {
		t.Errorf("ParseBackend(sparse) = %v, %v", b, err)
	}
	sparse, _ := NewLinearSolver(BackendSparse)
	if err := sparse.Solve(sys, make([]float64, 2)); !errors.Is(err, types.ErrNumericalDivergence) {
		t.Errorf("sparse: expected ErrNumericalDivergence, got %v", err)
	}
}

// TestSparsePivoting 对角元很小或为零时按列索引换行求解
func TestSparsePivoting(t *testing.T) {
	sys := NewTreeSystem([]int{types.Root, 0}, []int{0, 1})
	sys.Diag[0], sys.Diag[1] = 2, 0
	sys.Upper[1], sys.Lower[1] = 1, 3
	sys.RHS[0], sys.RHS[1] = 5, 1
	s := &sparseSolver{}
	x := make([]float64, 2)
	if err := s.Solve(sys, x); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(x[0]-1) > 1e-12 || math.Abs(x[1]-1) > 1e-12 {
		t.Errorf("x = %v, want [1 1]", x)
	}
	if s.P[0] == 0 {
		t.Errorf("zero diagonal must swap rows, P = %v", s.P)
	}

	rng := rand.New(rand.NewSource(4))
	dense, _ := NewLinearSolver(BackendDense)
	swapped := 0
	for _, n := range []int{3, 20, 80} {
		sys := randomTree(n, rng)
		for i := range n {
			sys.Diag[i] = 0.1 + 0.4*rng.Float64()
		}
		xs := make([]float64, n)
		xd := make([]float64, n)
		if err := s.Solve(sys, xs); err != nil {
			t.Fatalf("n=%d sparse solve failed: %v", n, err)
		}
		if err := dense.Solve(sys, xd); err != nil {
			t.Fatalf("n=%d dense solve failed: %v", n, err)
		}
		for i, p := range s.P {
			if p != i {
				swapped++
			}
		}
		scale := 1.0
		for _, v := range xd {
			scale = math.Max(scale, math.Abs(v))
		}
		ax := sys.MulVec(xs)
		for i := range n {
			if math.Abs(xs[i]-xd[i]) > 1e-8*scale {
				t.Errorf("n=%d node %d: sparse %g, dense %g", n, i, xs[i], xd[i])
			}
			if math.Abs(ax[i]-sys.RHS[i]) > 1e-9*scale {
				t.Errorf("n=%d node %d residual %g", n, i, ax[i]-sys.RHS[i])
			}
		}
		// 列索引与 U 中的非零元素一致
		for j := range n {
			count := 0
			for i := range n {
				if s.U[i].get(j) != 0 {
					count++
				}
			}
			if count != len(s.cols[j]) {
				t.Errorf("n=%d column %d: index holds %d rows, U has %d", n, j, len(s.cols[j]), count)
			}
			for _, i := range s.cols[j] {
				if s.U[i].get(j) == 0 {
					t.Errorf("n=%d column %d lists row %d without an entry", n, j, i)
				}
			}
		}
	}
	if swapped == 0 {
		t.Errorf("weak diagonals never triggered a row swap")
	}
}
