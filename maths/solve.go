// Package maths 提供舱室电压方程组的线性求解后端。
package maths

import (
	"cable/types"
	"fmt"
)

// LinearSolver 线性求解接口，x 为输出
type LinearSolver interface {
	Solve(sys *TreeSystem, x []float64) error
}

// Backend 求解后端
type Backend int

const (
	BackendTree   Backend = iota // 树消元
	BackendDense                 // 稠密 LU
	BackendSparse                // 稀疏 LU
)

// String 后端名称
func (b Backend) String() string {
	switch b {
	case BackendTree:
		return "tree"
	case BackendDense:
		return "dense"
	case BackendSparse:
		return "sparse"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend 通过名称获取后端
func ParseBackend(name string) (Backend, error) {
	for _, b := range []Backend{BackendTree, BackendDense, BackendSparse} {
		if b.String() == name {
			return b, nil
		}
	}
	return BackendTree, fmt.Errorf("未知求解后端 %q: %w", name, types.ErrConfiguration)
}

// NewLinearSolver 创建求解器，实例不可并发使用
func NewLinearSolver(b Backend) (LinearSolver, error) {
	switch b {
	case BackendTree:
		return &treeSolver{}, nil
	case BackendDense:
		return &denseSolver{}, nil
	case BackendSparse:
		return &sparseSolver{}, nil
	}
	return nil, fmt.Errorf("未知求解后端 %d: %w", int(b), types.ErrConfiguration)
}
