package load

import (
	"cable/types"
	"errors"
	"strings"
	"testing"
)

const minimalSWC = `# minimal
1 1 0 0 0 1 -1
2 1 1 0 0 1 1
3 3 0 2.6 0 0.5 1
4 3 1 2.2 0 0.5 2
`

// TestParseSWC 验证文本解析与注释跳过
func TestParseSWC(t *testing.T) {
	records, err := ParseSWC(strings.NewReader(minimalSWC + "\n5 2 1 0 3.0 0.3 2 # trailing\n"))
	if err != nil {
		t.Fatalf("ParseSWC failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	last := records[4]
	if last.ID != 5 || last.Type != types.TypeAxon || last.Parent != 2 || last.Z != 3.0 || last.Radius != 0.3 {
		t.Errorf("unexpected last record %+v", last)
	}
	if got := records[0].String(); got != "1 1 0 0 0 1 -1" {
		t.Errorf("String() = %q", got)
	}
	// 带小数点的整数列按整数读取
	records, err = ParseSWC(strings.NewReader("1.0 1 0 0 0 1 -1.0\n"))
	if err != nil {
		t.Fatalf("integral float columns must be accepted: %v", err)
	}
	if records[0].ID != 1 || records[0].Parent != -1 {
		t.Errorf("unexpected record %+v", records[0])
	}
}

// TestParseSWCErrors 验证列数与数值错误
func TestParseSWCErrors(t *testing.T) {
	for _, text := range []string{
		"1 1 0 0 0 1\n",
		"1 1 0 x 0 1 -1\n",
		"1 1 0 0 0 -1 -1\n",
		"1 1 0 0 0 1 -1\n2.7 3 1 0 0 1 1\n",
		"1 1 0 0 0 1 -1\n2 3 1 0 0 1 1.5\n",
		"# empty\n",
	} {
		if _, err := ParseSWC(strings.NewReader(text)); !errors.Is(err, types.ErrMalformedTrace) {
			t.Errorf("ParseSWC(%q) expected ErrMalformedTrace, got %v", text, err)
		}
	}
}

// TestCleanUnseenParent 父记录未定义必须报错
func TestCleanUnseenParent(t *testing.T) {
	records := []Record{
		{ID: 1, Type: types.TypeSoma, Radius: 1, Parent: -1},
		{ID: 2, Type: types.TypeAxon, X: 1, Radius: 1, Parent: 7},
	}
	_, err := Clean(records, DefaultOptions())
	if !errors.Is(err, types.ErrMalformedTrace) {
		t.Fatalf("expected ErrMalformedTrace, got %v", err)
	}
	if !strings.Contains(err.Error(), "7") {
		t.Errorf("error should name the missing parent: %v", err)
	}
}

// TestCleanDuplicates 验证重复记录与重合点合并
func TestCleanDuplicates(t *testing.T) {
	records := []Record{
		{ID: 1, Type: types.TypeSoma, Radius: 1, Parent: -1},
		{ID: 2, Type: types.TypeBasal, X: 1, Radius: 1, Parent: 1},
		{ID: 2, Type: types.TypeBasal, X: 1, Radius: 1, Parent: 1},
		{ID: 3, Type: types.TypeBasal, X: 1, Radius: 0.8, Parent: 2},
		{ID: 4, Type: types.TypeBasal, X: 2, Radius: 0.5, Parent: 3},
	}
	tr, err := Clean(records, DefaultOptions())
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if tr.Len() != 3 || tr.Merged != 2 {
		t.Fatalf("expected 3 points and 2 merges, got %d points, %d merges", tr.Len(), tr.Merged)
	}
	// 记录 4 接到记录 2 上
	if tr.Points[2].ID != 4 || tr.Points[2].Parent != 1 {
		t.Errorf("coincident point was not reconnected: %+v", tr.Points[2])
	}

	records[2].Radius = 3
	if _, err := Clean(records, DefaultOptions()); !errors.Is(err, types.ErrMalformedTrace) {
		t.Errorf("conflicting duplicate must fail, got %v", err)
	}
}

// TestCleanRootPolicy 验证多根归一策略
func TestCleanRootPolicy(t *testing.T) {
	records := []Record{
		{ID: 1, Type: types.TypeAxon, Radius: 1, Parent: -1},
		{ID: 2, Type: types.TypeAxon, X: 1, Radius: 1, Parent: 1},
		{ID: 3, Type: types.TypeSoma, Y: 5, Radius: 4, Parent: -1},
		{ID: 4, Type: types.TypeBasal, Y: 8, Radius: 1, Parent: 3},
	}
	tr, err := Clean(records, DefaultOptions())
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if tr.Points[tr.Root].ID != 3 {
		t.Errorf("first soma should be the root, got id %d", tr.Points[tr.Root].ID)
	}
	if tr.Points[0].Parent != tr.Root {
		t.Errorf("second root must be re-parented to the logical root")
	}
	if got := tr.Children[tr.Root]; len(got) != 2 || got[0] != 3 || got[1] != 0 {
		t.Errorf("unexpected root children %v", got)
	}

	opt := DefaultOptions()
	opt.RootPolicy = RootFirstRecord
	tr, err = Clean(records, opt)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if tr.Root != 0 {
		t.Errorf("first record should be the root, got %d", tr.Root)
	}

	opt.RootPolicy = RootStrict
	if _, err := Clean(records, opt); !errors.Is(err, types.ErrMalformedTrace) {
		t.Errorf("strict policy must reject two roots, got %v", err)
	}
}

// TestCleanInterruptions 验证追踪中断的桥接与拒绝
func TestCleanInterruptions(t *testing.T) {
	records := []Record{
		{ID: 1, Type: types.TypeSoma, Radius: 2, Parent: -1},
		{ID: 2, Type: types.TypeAxon, X: 1, Radius: 1, Parent: 1},
		{ID: 3, Type: types.TypeAxon, X: 21, Radius: 0.5, Parent: 2},
	}
	opt := DefaultOptions()
	opt.GapTolerance = 5
	tr, err := Clean(records, opt)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if tr.Bridged != 1 || tr.Len() != 4 {
		t.Fatalf("expected one bridged gap and 4 points, got %d / %d", tr.Bridged, tr.Len())
	}
	mid := tr.Points[2]
	if !mid.Synthetic || mid.X != 11 || mid.Radius != 0.75 || mid.ID != 4 {
		t.Errorf("unexpected synthetic point %+v", mid)
	}
	if tr.Points[3].Parent != 2 {
		t.Errorf("child must hang below the synthetic point")
	}

	opt.BridgeInterruptions = false
	if _, err := Clean(records, opt); !errors.Is(err, types.ErrMalformedTrace) {
		t.Errorf("disabled bridging must fail, got %v", err)
	}
}

// TestCleanRelevantTypes 验证类型过滤后的重连
func TestCleanRelevantTypes(t *testing.T) {
	records := []Record{
		{ID: 1, Type: types.TypeSoma, Radius: 2, Parent: -1},
		{ID: 2, Type: types.TissueType(7), X: 1, Radius: 1, Parent: 1},
		{ID: 3, Type: types.TypeBasal, X: 2, Radius: 1, Parent: 2},
	}
	opt := DefaultOptions()
	opt.RelevantTypes = []types.TissueType{types.TypeSoma, types.TypeBasal}
	tr, err := Clean(records, opt)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if tr.Len() != 2 || tr.Dropped != 1 || tr.Points[1].Parent != 0 {
		t.Errorf("expected basal point reconnected to soma, got %+v", tr.Points)
	}
}
