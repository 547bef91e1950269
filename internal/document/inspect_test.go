package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// buildPDF writes a minimal PDF with n empty pages and a correct xref table.
func buildPDF(n int) []byte {
	var objs []string
	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n),
	)
	for i := 0; i < n; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func buildZip(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		w.Write([]byte("<w:document/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestInspectPDF(t *testing.T) {
	data := buildPDF(3)
	info, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Kind != KindPDF || info.Pages != 3 || info.Size != len(data) {
		t.Errorf("info = %+v", info)
	}
	if info.Kind.Extension() != ".pdf" {
		t.Errorf("Extension() = %q", info.Kind.Extension())
	}
}

func TestInspectCorruptPDF(t *testing.T) {
	info, err := Inspect([]byte("%PDF-1.4\nthis is not really a pdf"))
	if err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
	if info.Kind != KindPDF {
		t.Errorf("Kind = %q, want pdf", info.Kind)
	}
}

func TestInspectDOCX(t *testing.T) {
	info, err := Inspect(buildZip(t, "[Content_Types].xml", "word/document.xml"))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Kind != KindDOCX || info.Pages != 0 {
		t.Errorf("info = %+v", info)
	}
}

func TestInspectOther(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"plain zip", buildZip(t, "notes.txt")},
		{"text", []byte("hello")},
		{"html error page", []byte("<html><body>502</body></html>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Inspect(tt.data)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if info.Kind != KindUnknown || info.Kind.Extension() != "" {
				t.Errorf("info = %+v", info)
			}
		})
	}
}

func TestInspectEmpty(t *testing.T) {
	if _, err := Inspect(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
}
