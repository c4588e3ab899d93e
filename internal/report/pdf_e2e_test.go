//go:build e2e

package report

import (
	"bytes"
	"context"
	"os"
	"testing"
)

func TestPDFRendererPrintsReport(t *testing.T) {
	r := PDFRenderer{ChromePath: os.Getenv("CHROME_PATH")}
	out, err := r.Render(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
}
