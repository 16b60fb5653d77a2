package graph

import (
	"cable/morph"
	"cable/types"
	"fmt"
	"maps"
	"slices"
)

func (top *Topology) checkBranch(b int) error {
	if b < 0 || b >= len(top.Branches) {
		return fmt.Errorf("分支下标 %d 越界 [0, %d): %w", b, len(top.Branches), types.ErrIndex)
	}
	return nil
}

// BranchComps 分支的全局舱室下标
func (top *Topology) BranchComps(b int) ([]int, error) {
	if err := top.checkBranch(b); err != nil {
		return nil, err
	}
	idx := make([]int, 0, top.Ncomp[b])
	for g := top.BranchStart[b]; g < top.BranchStart[b+1]; g++ {
		idx = append(idx, g)
	}
	return idx, nil
}

// Comp 分支 b 上归一化位置 loc 所在的舱室
func (top *Topology) Comp(b int, loc float64) (int, error) {
	if err := top.checkBranch(b); err != nil {
		return 0, err
	}
	if loc < 0 || loc > 1 {
		return 0, fmt.Errorf("位置 %g 不在 [0, 1] 内: %w", loc, types.ErrIndex)
	}
	n := top.Ncomp[b]
	i := min(int(loc*float64(n)), n-1)
	return top.BranchStart[b] + i, nil
}

// BranchesOfType 指定组织类型的分支
func (top *Topology) BranchesOfType(t types.TissueType) []int {
	var out []int
	for b, bt := range top.BranchType {
		if bt == t {
			out = append(out, b)
		}
	}
	return out
}

// Group 命名分组的分支
func (top *Topology) Group(name string) ([]int, error) {
	g, ok := top.groups[name]
	if !ok {
		return nil, fmt.Errorf("分组 %q 不存在: %w", name, types.ErrIndex)
	}
	return slices.Clone(g), nil
}

// GroupNames 全部分组名称，按字典序
func (top *Topology) GroupNames() []string {
	return slices.Sorted(maps.Keys(top.groups))
}

// AddToGroup 把分支加入命名分组，分组不存在时创建
func (top *Topology) AddToGroup(name string, branches ...int) error {
	for _, b := range branches {
		if err := top.checkBranch(b); err != nil {
			return err
		}
	}
	g := append(top.groups[name], branches...)
	slices.Sort(g)
	top.groups[name] = slices.Compact(g)
	return nil
}

// SetNcomp 只重新离散分支 b，其余分支的舱室几何不变，
// 之后的全局下标顺延，出错时不做任何修改
func (top *Topology) SetNcomp(b, n int) error {
	if err := top.checkBranch(b); err != nil {
		return err
	}
	segs, err := morph.Discretize(top.Branches[b], n, top.MinRadius)
	if err != nil {
		return fmt.Errorf("分支 %d: %w", b, err)
	}
	start, end := top.BranchStart[b], top.BranchStart[b+1]
	delta := n - (end - start)
	first := top.Parent[start]
	if first >= end {
		first += delta
	}
	comps := make([]Compartment, n)
	parent := make([]int, n)
	for i, s := range segs {
		comps[i] = Compartment{Branch: b, Index: i, Lo: s.Lo, Hi: s.Hi, Length: s.Length, Radius: s.Radius}
		parent[i] = start + i - 1
	}
	parent[0] = first
	// 之后的父舱室下标顺延，接在 b 上的改接到新的末舱室
	for g, p := range top.Parent {
		if g >= start && g < end {
			continue
		}
		switch {
		case p >= end:
			top.Parent[g] = p + delta
		case p >= start:
			top.Parent[g] = start + n - 1
		}
	}
	top.Comps = slices.Replace(top.Comps, start, end, comps...)
	top.Parent = slices.Replace(top.Parent, start, end, parent...)
	for k := b + 1; k < len(top.BranchStart); k++ {
		top.BranchStart[k] += delta
	}
	top.segs[b] = segs
	top.Ncomp[b] = n
	top.adjacency()
	return nil
}
