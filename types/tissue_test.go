package types

import (
	"errors"
	"testing"
)

// TestTissueTypeString 验证组织类型名称与解析互逆
func TestTissueTypeString(t *testing.T) {
	cases := map[TissueType]string{
		TypeSoma:       "soma",
		TypeAxon:       "axon",
		TypeBasal:      "basal",
		TypeApical:     "apical",
		TypeCustom:     "custom",
		TissueType(7):  "custom7",
		TissueType(-2): "type-2",
	}
	for tt, want := range cases {
		if got := tt.String(); got != want {
			t.Errorf("TissueType(%d).String() = %q, expected %q", int(tt), got, want)
		}
	}
	for _, name := range []string{"soma", "basal", "custom9"} {
		tt, err := ParseTissueType(name)
		if err != nil {
			t.Fatalf("ParseTissueType(%q) failed: %v", name, err)
		}
		if tt.String() != name {
			t.Errorf("round trip of %q gave %q", name, tt.String())
		}
	}
	if _, err := ParseTissueType("dendrite"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for unknown name, got %v", err)
	}
}
