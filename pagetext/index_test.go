package pagetext

import (
	"math"
	"testing"

	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/filters"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func buildIndex(t *testing.T, content string, fonts map[string]cos.Dict) *Index {
	t.Helper()
	doc := &cos.Document{Objects: map[cos.Ref]cos.Object{}}
	if fonts == nil {
		fonts = map[string]cos.Dict{
			"F1": {"Subtype": cos.Name("Type1"), "BaseFont": cos.Name("Helvetica")},
		}
	}
	ix, err := Build(doc, filters.NewPipeline(filters.Limits{}), []byte(content), fonts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func TestSingleRunGeometry(t *testing.T) {
	ix := buildIndex(t, "BT /F1 12 Tf 72 700 Td (Total Invoice Amount: $100) Tj ET", nil)
	runs := ix.Runs()
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Text != "Total Invoice Amount: $100" {
		t.Fatalf("text = %q", run.Text)
	}
	if run.Origin != OriginEmbedded {
		t.Error("origin not embedded")
	}
	// 26 characters at the default 500/1000 em width and size 12: 6 units
	// each, so the run spans [72, 228] with 0.8/-0.2 em vertical extents.
	if !near(run.Rect.X0, 72) || !near(run.Rect.X1, 228) {
		t.Errorf("x extent = [%g %g], want [72 228]", run.Rect.X0, run.Rect.X1)
	}
	if !near(run.Rect.Y0, 697.6) || !near(run.Rect.Y1, 709.6) {
		t.Errorf("y extent = [%g %g], want [697.6 709.6]", run.Rect.Y0, run.Rect.Y1)
	}
	if len(run.Offsets) != 27 {
		t.Fatalf("got %d offsets, want 27", len(run.Offsets))
	}
	if !near(run.Offsets[0], 0) || !near(run.Offsets[6], 36) || !near(run.Offsets[26], 156) {
		t.Errorf("offsets = %v", []float64{run.Offsets[0], run.Offsets[6], run.Offsets[26]})
	}
}

func TestRunsFollowContentOrder(t *testing.T) {
	content := `BT /F1 10 Tf 50 500 Td (first) Tj 0 -20 Td (second) Tj ET
BT /F1 10 Tf 50 400 Td (third) Tj ET`
	ix := buildIndex(t, content, nil)
	runs := ix.Runs()
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if runs[i].Text != w {
			t.Errorf("run %d = %q, want %q", i, runs[i].Text, w)
		}
	}
	if runs[1].Rect.Y1 >= runs[0].Rect.Y1 {
		t.Error("second line not below first")
	}
}

func TestDeterministicRebuild(t *testing.T) {
	content := "BT /F1 10 Tf 10 10 Td (abc) Tj (def) Tj ET"
	a := buildIndex(t, content, nil).Runs()
	b := buildIndex(t, content, nil).Runs()
	if len(a) != len(b) {
		t.Fatalf("run counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text || a[i].Rect != b[i].Rect {
			t.Fatalf("run %d differs across rebuilds", i)
		}
	}
}

func TestTJKerningAdvancesPen(t *testing.T) {
	// -500 thousandths at size 10 moves the pen 5 units right.
	ix := buildIndex(t, "BT /F1 10 Tf 0 0 Td [(ab) -500 (cd)] TJ ET", nil)
	runs := ix.Runs()
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Text != "abcd" {
		t.Fatalf("text = %q", run.Text)
	}
	// 4 glyphs at 5 units plus the 5-unit kern gap.
	if run.Rect.X1 != 25 {
		t.Errorf("X1 = %g, want 25", run.Rect.X1)
	}
	// The boundary after "ab" absorbs the kern.
	if run.Offsets[2] != 15 {
		t.Errorf("offset after kern = %g, want 15", run.Offsets[2])
	}
}

func TestScalingThroughCM(t *testing.T) {
	ix := buildIndex(t, "2 0 0 2 0 0 cm BT /F1 10 Tf 10 10 Td (x) Tj ET", nil)
	runs := ix.Runs()
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Rect.X0 != 20 {
		t.Errorf("X0 = %g, want 20", run.Rect.X0)
	}
	if w := run.Rect.Width(); w != 10 {
		t.Errorf("width = %g, want 10 (5 units doubled)", w)
	}
	if run.Offsets[1] != 10 {
		t.Errorf("offset scale not applied: %g", run.Offsets[1])
	}
}

func TestRotatedRunHasNoOffsets(t *testing.T) {
	ix := buildIndex(t, "BT /F1 10 Tf 0 1 -1 0 100 100 Tm (up) Tj ET", nil)
	runs := ix.Runs()
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Offsets != nil {
		t.Error("rotated run should not carry offsets")
	}
	if runs[0].Rect.Empty() {
		t.Error("rotated run rect is empty")
	}
}

func TestWidthsArrayAndSpacing(t *testing.T) {
	fonts := map[string]cos.Dict{
		"F1": {
			"Subtype":   cos.Name("Type1"),
			"FirstChar": cos.Integer('a'),
			"Widths":    cos.Array{cos.Integer(1000), cos.Integer(250)},
		},
	}
	// "ab" at size 10: 10 + 2.5 units, plus 1 unit char spacing each.
	ix := buildIndex(t, "BT /F1 10 Tf 1 Tc 0 0 Td (ab) Tj ET", fonts)
	run := ix.Runs()[0]
	if run.Rect.X1 != 14.5 {
		t.Errorf("X1 = %g, want 14.5", run.Rect.X1)
	}
}

func TestWordSpacingOnSpaces(t *testing.T) {
	ix := buildIndex(t, "BT /F1 10 Tf 2 Tw 0 0 Td (a b) Tj ET", nil)
	run := ix.Runs()[0]
	// Three glyphs at 5 units plus 2 units word spacing on the space.
	if run.Rect.X1 != 17 {
		t.Errorf("X1 = %g, want 17", run.Rect.X1)
	}
}

func TestNoTextNoRuns(t *testing.T) {
	ix := buildIndex(t, "q 1 0 0 1 50 50 cm Q 0 0 100 100 re f", nil)
	if len(ix.Runs()) != 0 {
		t.Fatalf("got %d runs, want 0", len(ix.Runs()))
	}
}

func TestToUnicodeDecoding(t *testing.T) {
	cmapData := `/CIDInit /ProcSet findresource begin
begincmap
2 beginbfchar
<41> <0042>
<42> <00480069>
endbfchar
endcmap
`
	doc := &cos.Document{Objects: map[cos.Ref]cos.Object{}}
	fonts := map[string]cos.Dict{
		"F1": {
			"Subtype":   cos.Name("Type1"),
			"ToUnicode": &cos.Stream{Dict: cos.Dict{}, Raw: []byte(cmapData)},
		},
	}
	ix, err := Build(doc, filters.NewPipeline(filters.Limits{}), []byte("BT /F1 10 Tf 0 0 Td (AB) Tj ET"), fonts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	run := ix.Runs()[0]
	// 'A' maps to "B", 'B' expands to "Hi".
	if run.Text != "BHi" {
		t.Fatalf("text = %q", run.Text)
	}
	// Two source glyphs, three runes: offsets must still be monotonic
	// and end at the pen position.
	if len(run.Offsets) != 4 {
		t.Fatalf("got %d offsets, want 4", len(run.Offsets))
	}
	if run.Offsets[3] != 10 {
		t.Errorf("final offset = %g, want 10", run.Offsets[3])
	}
	for i := 1; i < len(run.Offsets); i++ {
		if run.Offsets[i] <= run.Offsets[i-1] {
			t.Fatalf("offsets not monotonic: %v", run.Offsets)
		}
	}
}

func TestCIDWidthRanges(t *testing.T) {
	doc := &cos.Document{Objects: map[cos.Ref]cos.Object{}}
	fonts := map[string]cos.Dict{
		"F1": {
			"Subtype":  cos.Name("Type0"),
			"Encoding": cos.Name("Identity-H"),
			"DescendantFonts": cos.Array{cos.Dict{
				"DW": cos.Integer(1000),
				"W":  cos.Array{cos.Integer(1), cos.Array{cos.Integer(600)}, cos.Integer(10), cos.Integer(12), cos.Integer(400)},
			}},
		},
	}
	// Codes 0x0001 and 0x000B as two-byte strings.
	ix, err := Build(doc, filters.NewPipeline(filters.Limits{}), []byte("BT /F1 10 Tf 0 0 Td <0001000B> Tj ET"), fonts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	run := ix.Runs()[0]
	// 0.6 em + 0.4 em at size 10.
	if !near(run.Rect.X1, 10) {
		t.Errorf("X1 = %g, want 10", run.Rect.X1)
	}
}
