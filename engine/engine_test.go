package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/auditram/textmark/convert"
	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/geo"
	"github.com/auditram/textmark/pagetext"
	"github.com/auditram/textmark/pdf"
)

// onePagePDF builds a document whose single page shows text at 72 700
// in a 12pt default-width font.
func onePagePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 700 Td (%s) Tj ET", text)
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	b.WriteString("2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1" +
		" /MediaBox [0 0 612 792]" +
		" /Resources << /Font << /F1 5 0 R >> >> >> endobj\n")
	b.WriteString("3 0 obj << /Type /Page /Parent 2 0 R /Contents 4 0 R >> endobj\n")
	fmt.Fprintf(&b, "4 0 obj << /Length %d >> stream\n%s\nendstream endobj\n", len(content), content)
	b.WriteString("5 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj\n")
	b.WriteString("trailer << /Root 1 0 R >>\n%%EOF\n")
	return []byte(b.String())
}

func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadOutput(t *testing.T, path string) *pdf.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	doc, err := pdf.Load(bytes.NewReader(data), pdf.Options{})
	if err != nil {
		t.Fatalf("reload output: %v", err)
	}
	return doc
}

func pageAnnots(t *testing.T, doc *pdf.Document, page int) []cos.Dict {
	t.Helper()
	p := doc.Pages()[page]
	arr := doc.COS().Array(p.Dict["Annots"])
	var out []cos.Dict
	for _, item := range arr {
		if d := doc.COS().Dict(item); d != nil {
			out = append(out, d)
		}
	}
	return out
}

func TestHighlightVector(t *testing.T) {
	src := onePagePDF("Total Invoice Amount: 100")
	in := writeInput(t, "report.pdf", src)
	out := filepath.Join(t.TempDir(), "report.marked.pdf")

	rep, err := New(Options{}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "invoice",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Kind != KindVector || rep.Total != 1 || len(rep.Pages) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Pages[0].Matches != 1 || rep.Pages[0].Truncated {
		t.Fatalf("page report = %+v", rep.Pages[0])
	}

	// The input file is untouched.
	after, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, src) {
		t.Error("input file was modified")
	}

	doc := loadOutput(t, out)
	annots := pageAnnots(t, doc, 0)
	if len(annots) != 1 {
		t.Fatalf("got %d annotations, want 1", len(annots))
	}
	if n, _ := doc.COS().DictName(annots[0], "Subtype"); n != "Square" {
		t.Errorf("Subtype = %q", n)
	}
	// "Invoice" starts 6 glyphs in: 72 + 6*6 = 108, 7 glyphs wide.
	rect, ok := doc.COS().Rect(annots[0]["Rect"])
	if !ok {
		t.Fatal("annotation has no Rect")
	}
	if rect[0] < 107.9 || rect[0] > 108.1 || rect[2] < 149.9 || rect[2] > 150.1 {
		t.Errorf("Rect = %v", rect)
	}
}

// multiPagePDF builds one page per entry, each showing its text at
// 72 700 in a 12pt default-width font.
func multiPagePDF(texts []string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	fontObj := 3 + 2*len(texts)
	b.WriteString("2 0 obj << /Type /Pages /Kids [")
	for i := range texts {
		fmt.Fprintf(&b, "%d 0 R ", 3+2*i)
	}
	fmt.Fprintf(&b, "] /Count %d /MediaBox [0 0 612 792]"+
		" /Resources << /Font << /F1 %d 0 R >> >> >> endobj\n", len(texts), fontObj)
	for i, text := range texts {
		content := fmt.Sprintf("BT /F1 12 Tf 72 700 Td (%s) Tj ET", text)
		fmt.Fprintf(&b, "%d 0 obj << /Type /Page /Parent 2 0 R /Contents %d 0 R >> endobj\n", 3+2*i, 4+2*i)
		fmt.Fprintf(&b, "%d 0 obj << /Length %d >> stream\n%s\nendstream endobj\n", 4+2*i, len(content), content)
	}
	fmt.Fprintf(&b, "%d 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj\n", fontObj)
	b.WriteString("trailer << /Root 1 0 R >>\n%%EOF\n")
	return []byte(b.String())
}

func TestHighlightVectorMultiPage(t *testing.T) {
	src := multiPagePDF([]string{
		"Invoice one",
		"nothing here",
		"another Invoice line",
		"still nothing",
	})
	in := writeInput(t, "batch.pdf", src)
	out := filepath.Join(t.TempDir(), "batch.marked.pdf")

	rep, err := New(Options{Workers: 3}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "invoice",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Total != 2 || len(rep.Pages) != 4 {
		t.Fatalf("report = %+v", rep)
	}
	for i, pr := range rep.Pages {
		if pr.Page != i+1 {
			t.Fatalf("page reports out of order: %+v", rep.Pages)
		}
	}
	wantMatches := []int{1, 0, 1, 0}
	for i, want := range wantMatches {
		if rep.Pages[i].Matches != want {
			t.Errorf("page %d matches = %d, want %d", i+1, rep.Pages[i].Matches, want)
		}
	}

	doc := loadOutput(t, out)
	if n := len(doc.Pages()); n != 4 {
		t.Fatalf("output has %d pages, want 4", n)
	}
	for i, want := range wantMatches {
		if got := len(pageAnnots(t, doc, i)); got != want {
			t.Errorf("page %d annots = %d, want %d", i+1, got, want)
		}
	}
}

func TestHighlightVectorNoMatches(t *testing.T) {
	in := writeInput(t, "report.pdf", onePagePDF("nothing relevant here"))
	out := filepath.Join(t.TempDir(), "out.pdf")

	rep, err := New(Options{}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "invoice",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Total != 0 {
		t.Fatalf("Total = %d", rep.Total)
	}
	if annots := pageAnnots(t, loadOutput(t, out), 0); len(annots) != 0 {
		t.Errorf("unexpected annotations: %v", annots)
	}
}

func TestHighlightEmptyQuerySucceeds(t *testing.T) {
	in := writeInput(t, "a.pdf", onePagePDF("anything"))
	out := filepath.Join(t.TempDir(), "a.out.pdf")
	rep, err := New(Options{}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Total != 0 {
		t.Fatalf("Total = %d, want 0", rep.Total)
	}
	if annots := pageAnnots(t, loadOutput(t, out), 0); len(annots) != 0 {
		t.Errorf("empty query produced annotations: %v", annots)
	}
}

func TestHighlightUnsupportedFormat(t *testing.T) {
	in := writeInput(t, "notes.txt", []byte("plain text"))
	_, err := New(Options{}).Highlight(context.Background(), Request{
		Input: in, Output: in + ".out", Query: "plain",
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFailureLeavesNoOutput(t *testing.T) {
	in := writeInput(t, "broken.pdf", []byte("not a document at all"))
	out := filepath.Join(t.TempDir(), "out.pdf")
	_, err := New(Options{}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "x",
	})
	if err == nil {
		t.Fatal("expected load error")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("failed run left an output file")
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"a.pdf": KindVector, "b.PDF": KindVector,
		"c.png": KindRaster, "d.JPG": KindRaster, "e.tiff": KindRaster,
		"f.docx": KindOffice, "g.xlsx": KindOffice,
		"h.txt": KindUnknown, "noext": KindUnknown,
	}
	for path, want := range cases {
		if got := Classify(path); got != want {
			t.Errorf("Classify(%q) = %v, want %v", path, got, want)
		}
	}
}

type fixedRecognizer struct {
	runs []pagetext.TextRun
}

func (r fixedRecognizer) Recognize(context.Context, RasterPage) ([]pagetext.TextRun, error) {
	return r.runs, nil
}

func pngInput(t *testing.T, w, h int) string {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return writeInput(t, "scan.png", buf.Bytes())
}

func TestHighlightRasterWithoutRecognizer(t *testing.T) {
	in := pngInput(t, 40, 20)
	out := filepath.Join(t.TempDir(), "scan.marked.png")

	rep, err := New(Options{}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "invoice",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Kind != KindRaster || rep.Total != 0 {
		t.Fatalf("report = %+v", rep)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("output is not a png: %v", err)
	}
}

func TestHighlightRasterWithRecognizer(t *testing.T) {
	in := pngInput(t, 100, 40)
	out := filepath.Join(t.TempDir(), "scan.marked.png")

	rec := fixedRecognizer{runs: []pagetext.TextRun{{
		Text:    "invoice 42",
		Rect:    geo.Rect{X0: 10, Y0: 10, X1: 60, Y1: 22},
		Origin:  pagetext.OriginEmbedded,
		Offsets: []float64{0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50},
	}}}
	rep, err := New(Options{Recognizer: rec}).Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "invoice",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Total != 1 {
		t.Fatalf("Total = %d", rep.Total)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(10, 10).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("outline corner = %d %d %d, want red", r>>8, g>>8, b>>8)
	}
}

type copyGateway struct {
	pdfData []byte
}

func (g copyGateway) Supports(ext string) bool { return strings.EqualFold(ext, ".docx") }

func (g copyGateway) Convert(_ context.Context, src, outDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(outDir, base+".pdf")
	return dst, os.WriteFile(dst, g.pdfData, 0o644)
}

func TestHighlightOffice(t *testing.T) {
	in := writeInput(t, "report.docx", []byte("fake office payload"))
	out := filepath.Join(t.TempDir(), "report.marked.docx")

	e := New(Options{Gateway: copyGateway{pdfData: onePagePDF("Invoice due")}})
	rep, err := e.Highlight(context.Background(), Request{
		Input: in, Output: out, Query: "invoice",
	})
	if err != nil {
		t.Fatalf("Highlight: %v", err)
	}
	if rep.Kind != KindOffice || rep.Total != 1 {
		t.Fatalf("report = %+v", rep)
	}
	// The converted output is a document, with the extension to match.
	want := strings.TrimSuffix(out, ".docx") + ".pdf"
	if rep.Output != want {
		t.Errorf("Output = %q, want %q", rep.Output, want)
	}
	if len(pageAnnots(t, loadOutput(t, want), 0)) != 1 {
		t.Error("converted document not annotated")
	}
}

type unavailableGateway struct{}

func (unavailableGateway) Supports(string) bool { return true }

func (unavailableGateway) Convert(context.Context, string, string) (string, error) {
	return "", convert.ErrUnavailable
}

func TestHighlightOfficeGatewayUnavailable(t *testing.T) {
	in := writeInput(t, "report.docx", []byte("payload"))
	_, err := New(Options{Gateway: unavailableGateway{}}).Highlight(context.Background(), Request{
		Input: in, Output: in + ".out", Query: "x",
	})
	if !errors.Is(err, convert.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	var re *ResourceError
	if !errors.As(err, &re) || re.Stage != "convert" {
		t.Fatalf("err = %v, want convert-stage ResourceError", err)
	}
	if _, err := os.Stat(in + ".out"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output exists after failed conversion")
	}
}

func TestHighlightAllOrderAndIsolation(t *testing.T) {
	good1 := writeInput(t, "a.pdf", onePagePDF("invoice one"))
	bad := writeInput(t, "b.pdf", []byte("garbage"))
	good2 := writeInput(t, "c.pdf", onePagePDF("invoice two"))
	dir := t.TempDir()

	reqs := []Request{
		{Input: good1, Output: filepath.Join(dir, "a.out.pdf"), Query: "invoice"},
		{Input: bad, Output: filepath.Join(dir, "b.out.pdf"), Query: "invoice"},
		{Input: good2, Output: filepath.Join(dir, "c.out.pdf"), Query: "invoice"},
	}
	results := New(Options{Workers: 2}).HighlightAll(context.Background(), reqs)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err != nil || results[0].Report.Total != 1 {
		t.Errorf("result 0 = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("bad input did not fail")
	}
	if results[2].Err != nil || results[2].Report.Total != 1 {
		t.Errorf("result 2 = %+v", results[2])
	}
}

func TestHighlightAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := writeInput(t, "a.pdf", onePagePDF("invoice"))
	results := New(Options{}).HighlightAll(ctx, []Request{
		{Input: in, Output: in + ".out", Query: "invoice"},
	})
	if results[0].Err == nil {
		t.Fatal("expected context error")
	}
}
