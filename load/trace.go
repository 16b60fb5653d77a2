package load

import (
	"cable/types"
	"fmt"
	"log/slog"
	"math"
)

// RootPolicy 多个根记录时的处理策略
type RootPolicy int

const (
	RootFirstSoma   RootPolicy = iota // 第一个胞体根为逻辑根，其余根接到它上面
	RootFirstRecord                   // 第一个根记录为逻辑根，其余根接到它上面
	RootStrict                        // 出现多个根即报错
)

// String 策略名称
func (p RootPolicy) String() string {
	switch p {
	case RootFirstSoma:
		return "first-soma"
	case RootFirstRecord:
		return "first-record"
	case RootStrict:
		return "strict"
	}
	return fmt.Sprintf("RootPolicy(%d)", int(p))
}

// ParseRootPolicy 通过名称获取策略
func ParseRootPolicy(name string) (RootPolicy, error) {
	for _, p := range []RootPolicy{RootFirstSoma, RootFirstRecord, RootStrict} {
		if p.String() == name {
			return p, nil
		}
	}
	return RootFirstSoma, fmt.Errorf("未知根策略 %q: %w", name, types.ErrConfiguration)
}

// Options 清洗配置
type Options struct {
	RootPolicy          RootPolicy         // 多根策略
	GapTolerance        float64            // 子点与父点的最大允许距离(um)，<=0 不检查
	BridgeInterruptions bool               // 超出容差时插入插值连接点，否则报错
	RelevantTypes       []types.TissueType // 参与追踪的类型，空表示全部
	Logger              *slog.Logger       // 日志，nil 使用默认
}

// DefaultOptions 默认清洗配置
func DefaultOptions() Options {
	return Options{RootPolicy: RootFirstSoma, BridgeInterruptions: true}
}

// Point 清洗后的追踪点，Parent 为点数组下标
type Point struct {
	ID        int
	Type      types.TissueType
	X, Y, Z   float64
	Radius    float64
	Parent    int
	Synthetic bool // 桥接插入的点
}

// Trace 单根点树，点按父先子后的顺序存放
type Trace struct {
	Points   []Point
	Children [][]int // 每个点的子点下标，按输入顺序
	Root     int

	Merged  int // 合并的重复点数量
	Bridged int // 桥接的追踪中断数量
	Dropped int // 被类型过滤的点数量
}

// Dist 两点间的欧氏距离
func (tr *Trace) Dist(i, j int) float64 {
	a, b := &tr.Points[i], &tr.Points[j]
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y) + (a.Z-b.Z)*(a.Z-b.Z))
}

// Len 点数量
func (tr *Trace) Len() int { return len(tr.Points) }

// coincident 两点位置是否重合
func coincident(a Point, r Record) bool {
	const eps = 1e-9
	return math.Abs(a.X-r.X) < eps && math.Abs(a.Y-r.Y) < eps && math.Abs(a.Z-r.Z) < eps
}

// sameRecord 重复记录的几何信息是否一致
func sameRecord(a, b Record) bool {
	return a.Type == b.Type && a.X == b.X && a.Y == b.Y && a.Z == b.Z && a.Radius == b.Radius && a.Parent == b.Parent
}

// Clean 检查并清洗原始记录:
// 去重、类型过滤、重合点合并、父节点校验、追踪中断桥接、多根归一
func Clean(records []Record, opt Options) (*Trace, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("没有任何追踪记录: %w", types.ErrMalformedTrace)
	}
	relevant := map[types.TissueType]bool{}
	for _, t := range opt.RelevantTypes {
		relevant[t] = true
	}
	tr := &Trace{Root: types.Root}
	seen := map[int]Record{} // 已读取的记录
	index := map[int]int{}   // 记录标识 -> 点下标，-1 表示挂到根
	nextID := maxRecordID(records) + 1
	var roots []int
	for _, rec := range records {
		if prev, ok := seen[rec.ID]; ok {
			if !sameRecord(prev, rec) {
				return nil, fmt.Errorf("记录 %d 重复且几何信息不一致: %w", rec.ID, types.ErrMalformedTrace)
			}
			tr.Merged++
			continue
		}
		seen[rec.ID] = rec
		parent := types.Root
		if rec.Parent >= 0 {
			p, ok := index[rec.Parent]
			if !ok {
				return nil, fmt.Errorf("记录 %d 的父记录 %d 未定义: %w", rec.ID, rec.Parent, types.ErrMalformedTrace)
			}
			parent = p
		}
		// 类型过滤，后代接到最近的保留祖先
		if len(relevant) > 0 && !relevant[rec.Type] {
			index[rec.ID] = parent
			tr.Dropped++
			continue
		}
		// 与父点重合的同类型点合并到父点
		if parent >= 0 && tr.Points[parent].Type == rec.Type && coincident(tr.Points[parent], rec) {
			index[rec.ID] = parent
			tr.Merged++
			continue
		}
		if parent >= 0 && opt.GapTolerance > 0 {
			p := tr.Points[parent]
			gap := math.Sqrt((p.X-rec.X)*(p.X-rec.X) + (p.Y-rec.Y)*(p.Y-rec.Y) + (p.Z-rec.Z)*(p.Z-rec.Z))
			if gap > opt.GapTolerance {
				if !opt.BridgeInterruptions {
					return nil, fmt.Errorf("记录 %d 与父记录 %d 相距 %g 超出容差 %g: %w",
						rec.ID, rec.Parent, gap, opt.GapTolerance, types.ErrMalformedTrace)
				}
				parent = tr.add(Point{
					ID:        nextID,
					Type:      rec.Type,
					X:         (p.X + rec.X) / 2,
					Y:         (p.Y + rec.Y) / 2,
					Z:         (p.Z + rec.Z) / 2,
					Radius:    (p.Radius + rec.Radius) / 2,
					Parent:    parent,
					Synthetic: true,
				})
				nextID++
				tr.Bridged++
				logger.Warn("追踪中断已桥接", "id", rec.ID, "parent", rec.Parent, "gap", gap)
			}
		}
		i := tr.add(Point{
			ID:     rec.ID,
			Type:   rec.Type,
			X:      rec.X,
			Y:      rec.Y,
			Z:      rec.Z,
			Radius: rec.Radius,
			Parent: parent,
		})
		index[rec.ID] = i
		if parent == types.Root {
			roots = append(roots, i)
		}
	}
	if len(tr.Points) == 0 {
		return nil, fmt.Errorf("过滤后没有剩余追踪点: %w", types.ErrMalformedTrace)
	}
	if err := tr.resolveRoots(roots, opt.RootPolicy); err != nil {
		return nil, err
	}
	if len(roots) > 1 {
		logger.Warn("存在多个根记录，已归一为单根", "roots", len(roots), "policy", opt.RootPolicy.String(),
			"root_id", tr.Points[tr.Root].ID)
	}
	return tr, nil
}

// add 追加一个点并登记到父点的子列表
func (tr *Trace) add(p Point) int {
	i := len(tr.Points)
	tr.Points = append(tr.Points, p)
	tr.Children = append(tr.Children, nil)
	if p.Parent >= 0 {
		tr.Children[p.Parent] = append(tr.Children[p.Parent], i)
	}
	return i
}

// resolveRoots 按策略选出逻辑根，其余根接到逻辑根
func (tr *Trace) resolveRoots(roots []int, policy RootPolicy) error {
	if len(roots) == 0 {
		return fmt.Errorf("追踪数据没有根记录: %w", types.ErrMalformedTrace)
	}
	root := roots[0]
	switch policy {
	case RootStrict:
		if len(roots) > 1 {
			return fmt.Errorf("追踪数据有 %d 个根记录(第二个为 %d): %w",
				len(roots), tr.Points[roots[1]].ID, types.ErrMalformedTrace)
		}
	case RootFirstSoma:
		for _, r := range roots {
			if tr.Points[r].Type.IsSoma() {
				root = r
				break
			}
		}
	case RootFirstRecord:
	default:
		return fmt.Errorf("未知根策略 %d: %w", int(policy), types.ErrConfiguration)
	}
	tr.Root = root
	for _, r := range roots {
		if r == root {
			continue
		}
		tr.Points[r].Parent = root
		tr.Children[root] = append(tr.Children[root], r)
	}
	return nil
}

func maxRecordID(records []Record) int {
	m := 0
	for _, r := range records {
		m = max(m, r.ID)
	}
	return m
}
