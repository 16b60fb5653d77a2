// Package graph 把离散后的分支组装为全局舱室树，并提供选择与局部重离散。
package graph

import (
	"cable/morph"
	"cable/types"
	"fmt"
	"math"
	"slices"
)

// Compartment 单个舱室的几何信息
type Compartment struct {
	Branch int     // 所属分支
	Index  int     // 分支内序号
	Lo, Hi float64 // 分支内归一化区间
	Length float64 // 长度(um)
	Radius float64 // 半径(um)
}

// Area 侧面积(um²)
func (c Compartment) Area() float64 { return 2 * math.Pi * c.Radius * c.Length }

// Topology 舱室树
type Topology struct {
	Branches     []morph.RawBranch  // 原始分支，按分区顺序
	BranchParent []int              // 父分支下标
	BranchType   []types.TissueType // 分支组织类型
	Ncomp        []int              // 每个分支的舱室数量
	BranchStart  []int              // 分支首个舱室的全局下标，长度为分支数+1

	Comps    []Compartment // 全局舱室
	Parent   []int         // 每个舱室的父舱室，types.Root 为根
	Children [][]int       // 每个舱室的子舱室
	Order    []int         // 根优先的求解顺序

	MinRadius float64 // 半径下限(um)

	segs   [][]morph.Segment
	groups map[string][]int
}

// Assemble 按分区顺序拼接分支并建立父子关系
// ncomp 长度为 1 时对所有分支生效
func Assemble(branches []morph.RawBranch, ncomp []int, minRadius float64) (*Topology, error) {
	nb := len(branches)
	if nb == 0 {
		return nil, fmt.Errorf("没有分支: %w", types.ErrConfiguration)
	}
	switch len(ncomp) {
	case nb:
	case 1:
		ncomp = slices.Repeat(ncomp, nb)
	default:
		return nil, fmt.Errorf("舱室数量个数 %d 与分支数 %d 不一致: %w", len(ncomp), nb, types.ErrConfiguration)
	}
	if minRadius <= 0 {
		minRadius = types.MinRadius
	}
	top := &Topology{
		Branches:     branches,
		BranchParent: make([]int, nb),
		BranchType:   make([]types.TissueType, nb),
		Ncomp:        slices.Clone(ncomp),
		MinRadius:    minRadius,
		segs:         make([][]morph.Segment, nb),
		groups:       map[string][]int{},
	}
	for b, br := range branches {
		top.BranchParent[b] = br.Parent
		top.BranchType[b] = br.Type
	}
	if err := validate(top.BranchParent); err != nil {
		return nil, err
	}
	for b, br := range branches {
		segs, err := morph.Discretize(br, top.Ncomp[b], minRadius)
		if err != nil {
			return nil, fmt.Errorf("分支 %d: %w", b, err)
		}
		top.segs[b] = segs
		name := br.Type.String()
		top.groups[name] = append(top.groups[name], b)
	}
	top.rebuild()
	return top, nil
}

// validate 检查分支父数组: 唯一根、下标合法、无环
func validate(parent []int) error {
	nb := len(parent)
	root := types.Root
	children := make([][]int, nb)
	for b, p := range parent {
		switch {
		case p == types.Root:
			if root != types.Root {
				return fmt.Errorf("分支 %d 与 %d 都是根: %w: %w", root, b, types.ErrConfiguration, types.ErrMalformedTopology)
			}
			root = b
		case p < 0 || p >= nb || p == b:
			return fmt.Errorf("分支 %d 的父分支 %d 无效: %w: %w", b, p, types.ErrConfiguration, types.ErrMalformedTopology)
		default:
			children[p] = append(children[p], b)
		}
	}
	if root == types.Root {
		return fmt.Errorf("没有根分支: %w: %w", types.ErrConfiguration, types.ErrMalformedTopology)
	}
	// 唯一根且每个分支只有一个父分支时，不可达即存在环
	visited := 0
	stack := []int{root}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++
		stack = append(stack, children[b]...)
	}
	if visited != nb {
		return fmt.Errorf("%d 个分支无法从根到达(存在环): %w: %w", nb-visited, types.ErrConfiguration, types.ErrMalformedTopology)
	}
	return nil
}

// rebuild 由每个分支的舱室重新拼接全局数组
func (top *Topology) rebuild() {
	nb := len(top.Branches)
	top.BranchStart = make([]int, nb+1)
	for b := range nb {
		top.BranchStart[b+1] = top.BranchStart[b] + top.Ncomp[b]
	}
	n := top.BranchStart[nb]
	top.Comps = make([]Compartment, 0, n)
	top.Parent = make([]int, n)
	for b := range nb {
		start := top.BranchStart[b]
		for i, s := range top.segs[b] {
			top.Comps = append(top.Comps, Compartment{
				Branch: b,
				Index:  i,
				Lo:     s.Lo,
				Hi:     s.Hi,
				Length: s.Length,
				Radius: s.Radius,
			})
			g := start + i
			switch {
			case i > 0:
				top.Parent[g] = g - 1
			case top.BranchParent[b] == types.Root:
				top.Parent[g] = types.Root
			default:
				// 子分支首舱室接到父分支末舱室
				top.Parent[g] = top.BranchStart[top.BranchParent[b]+1] - 1
			}
		}
	}
	top.adjacency()
}

// adjacency 由 Parent 重建子舱室列表与求解顺序
func (top *Topology) adjacency() {
	n := len(top.Parent)
	top.Children = make([][]int, n)
	root := 0
	for g, p := range top.Parent {
		if p == types.Root {
			root = g
			continue
		}
		top.Children[p] = append(top.Children[p], g)
	}
	// 广度优先，父舱室总在子舱室之前
	top.Order = make([]int, 0, n)
	top.Order = append(top.Order, root)
	for k := 0; k < len(top.Order); k++ {
		top.Order = append(top.Order, top.Children[top.Order[k]]...)
	}
}

// NumComps 舱室总数
func (top *Topology) NumComps() int { return len(top.Comps) }

// NumBranches 分支总数
func (top *Topology) NumBranches() int { return len(top.Branches) }

// Root 根舱室
func (top *Topology) Root() int { return top.Order[0] }

// Segments 分支的离散结果
func (top *Topology) Segments(b int) []morph.Segment { return top.segs[b] }

// Conductances 每条边(以子舱室为下标)的轴向电导(S)，
// 两个半舱室电阻串联，ra 为每个舱室的轴向电阻率(Ω·cm)
func (top *Topology) Conductances(ra []float64) ([]float64, error) {
	if len(ra) != len(top.Comps) {
		return nil, fmt.Errorf("轴向电阻率个数 %d 与舱室数 %d 不一致: %w", len(ra), len(top.Comps), types.ErrConfiguration)
	}
	g := make([]float64, len(top.Comps))
	for i, p := range top.Parent {
		if p == types.Root {
			continue
		}
		r := halfResistance(top.Comps[i], ra[i]) + halfResistance(top.Comps[p], ra[p])
		g[i] = 1 / r
	}
	return g, nil
}

// halfResistance 半个舱室的轴向电阻(Ω)
// Ω·cm·um/um² 换算到 Ω 需乘 1e4
func halfResistance(c Compartment, ra float64) float64 {
	return ra * (c.Length / 2) / (math.Pi * c.Radius * c.Radius) * 1e4
}
