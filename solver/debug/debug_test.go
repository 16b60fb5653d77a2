package debug

import (
	"bytes"
	"cable/graph"
	"cable/mech"
	"cable/morph"
	"cable/solver"
	"cable/types"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleRecord(t *testing.T) *Record {
	t.Helper()
	b := morph.RawBranch{
		Samples:    []morph.Sample{{Radius: 1}, {X: 50, Radius: 1}},
		SegLengths: []float64{50},
		Length:     50,
		Type:       types.TypeBasal,
		Parent:     types.Root,
	}
	child := b
	child.Parent = 0
	top, err := graph.Assemble([]morph.RawBranch{b, child}, []int{2}, 0)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	m := solver.NewModel(top)
	leak := mech.NewLeak("Leak")
	m.Channels = []solver.ChannelSite{{
		Channel: leak,
		Comps:   []int{0, 1, 2, 3},
		Params:  [][]float64{{1e-4, -70}, {1e-4, -70}, {1e-4, -70}, {1e-4, -70}},
	}}
	m.Stimuli = []solver.Stimulus{{Comp: 0, Current: []float64{0.1, 0.1, 0.1}}}
	m.Recordings = []solver.Recording{{Comp: 0, Name: types.StateVoltage}, {Comp: 3, Name: types.StateVoltage}}
	opt := solver.DefaultOptions()
	opt.TMax = 0.25
	res, err := solver.Integrate(context.Background(), m, opt)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	return NewRecord(top, res)
}

// TestRecordJSON 记录可以写出并读回
func TestRecordJSON(t *testing.T) {
	rec := sampleRecord(t)
	var buf bytes.Buffer
	if err := rec.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	back, err := ReadRecord(&buf)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if back.RunID != rec.RunID || len(back.Traces) != 2 || len(back.Time) != 11 || back.Branches[1].Parent != 0 {
		t.Errorf("unexpected record %+v", back)
	}
}

// TestCharts 网页包含分支与曲线
func TestCharts(t *testing.T) {
	rec := sampleRecord(t)
	var buf bytes.Buffer
	if err := (&Charts{Record: rec}).Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"Branch(1)", "v@3", "basal"} {
		if !strings.Contains(html, want) {
			t.Errorf("html misses %q", want)
		}
	}
}

// TestExport 按扩展名选择格式
func TestExport(t *testing.T) {
	rec := sampleRecord(t)
	dir := t.TempDir()
	png := filepath.Join(dir, "trace.png")
	if err := Export(png, rec); err != nil {
		t.Fatalf("Export png failed: %v", err)
	}
	data, err := os.ReadFile(png)
	if err != nil || !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("not a png file: %v", err)
	}
	if err := Export(filepath.Join(dir, "trace.json"), rec); err != nil {
		t.Errorf("Export json failed: %v", err)
	}
	if err := Export(filepath.Join(dir, "trace.csv"), rec); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("unsupported format must fail, got %v", err)
	}
}
