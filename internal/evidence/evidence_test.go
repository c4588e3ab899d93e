package evidence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"tokasu/internal/domain"
)

func memFile(name string, data []byte) File {
	return File{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}}
}

func encode(t *testing.T, enc encoding.Encoding, s string) []byte {
	t.Helper()
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return out
}

func TestSpeechInterimReplacedAndFinalCommitted(t *testing.T) {
	c := NewComposer()
	c.AppendText("状況: ")
	events := make(chan SpeechEvent, 8)
	s, err := c.StartSpeech(context.Background(), events)
	if err != nil {
		t.Fatalf("StartSpeech failed: %v", err)
	}
	events <- SpeechEvent{Kind: SpeechInterim, Text: "お客"}
	events <- SpeechEvent{Kind: SpeechInterim, Text: "お客様が"}
	events <- SpeechEvent{Kind: SpeechFinal, Text: "お客様が怒鳴った。"}
	events <- SpeechEvent{Kind: SpeechInterim, Text: "三十分"}
	events <- SpeechEvent{Kind: SpeechEnded}
	s.Wait()

	if got, want := c.Description(), "状況: お客様が怒鳴った。三十分"; got != want {
		t.Fatalf("description = %q, want %q", got, want)
	}
}

func TestSpeechStopFlushesPendingInterim(t *testing.T) {
	c := NewComposer()
	events := make(chan SpeechEvent, 2)
	s, err := c.StartSpeech(context.Background(), events)
	if err != nil {
		t.Fatalf("StartSpeech failed: %v", err)
	}
	events <- SpeechEvent{Kind: SpeechInterim, Text: "退去を拒否"}
	s.Stop()
	s.Stop()

	if got := c.Description(); got != "退去を拒否" {
		t.Fatalf("interim text lost on stop: %q", got)
	}
	if _, err := c.StartSpeech(context.Background(), make(chan SpeechEvent)); err != nil {
		t.Fatalf("expected a new session after stop, got %v", err)
	}
}

func TestSpeechSingleSessionAndCancel(t *testing.T) {
	c := NewComposer()
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan SpeechEvent, 1)
	s, err := c.StartSpeech(ctx, events)
	if err != nil {
		t.Fatalf("StartSpeech failed: %v", err)
	}
	if _, err := c.StartSpeech(ctx, events); !errors.Is(err, ErrSpeechActive) {
		t.Fatalf("expected ErrSpeechActive, got %v", err)
	}
	events <- SpeechEvent{Kind: SpeechInterim, Text: "土下座"}
	cancel()
	s.Wait()
	if got := c.Description(); got != "土下座" {
		t.Fatalf("description = %q", got)
	}
}

func TestIngestFilesDecodesAndOrders(t *testing.T) {
	c := NewComposer()
	c.AppendText("電話での苦情")
	files := []File{
		memFile("memo.txt", []byte("UTF-8のメモ")),
		memFile("sjis.txt", encode(t, japanese.ShiftJIS, "シフトJISの記録")),
		memFile("euc.txt", encode(t, japanese.EUCJP, "日本語EUCの記録")),
		memFile("utf16.txt", encode(t, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), "UTF16の記録")),
		memFile("call.m4a", []byte{0x00, 0x01, 0x02, 0x03}),
	}
	report, err := c.IngestFiles(context.Background(), files)
	if err != nil {
		t.Fatalf("IngestFiles failed: %v", err)
	}
	if len(report.Skipped) != 0 {
		t.Fatalf("unexpected skipped files: %+v", report.Skipped)
	}

	want := strings.Join([]string{
		"電話での苦情",
		"【memo.txt】\nUTF-8のメモ",
		"【sjis.txt】\nシフトJISの記録",
		"【euc.txt】\n日本語EUCの記録",
		"【utf16.txt】\nUTF16の記録",
		"【音声ファイル: call.m4a】\n" + audioPlaceholder,
	}, "\n\n")
	if diff := cmp.Diff(want, c.Description()); diff != "" {
		t.Fatalf("description mismatch (-want +got):\n%s", diff)
	}

	metas := c.Files()
	if len(metas) != 5 {
		t.Fatalf("expected 5 file metas, got %d", len(metas))
	}
	if metas[4].Kind != domain.FileKindAudio || metas[4].Size != 4 {
		t.Fatalf("unexpected audio meta: %+v", metas[4])
	}
	if metas[0].Kind != domain.FileKindText || metas[0].Size != int64(len("UTF-8のメモ")) {
		t.Fatalf("unexpected text meta: %+v", metas[0])
	}
}

func TestIngestFilesSkipsBadFilesAndContinues(t *testing.T) {
	c := NewComposer()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	broken := File{Name: "gone.txt", Open: func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}}
	report, err := c.IngestFiles(context.Background(), []File{
		memFile("photo.png", png),
		broken,
		memFile("ok.txt", []byte("残った記録")),
	})
	if err != nil {
		t.Fatalf("IngestFiles failed: %v", err)
	}
	if len(report.Added) != 1 || len(report.Skipped) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !errors.Is(report.Skipped[0].Err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", report.Skipped[0].Err)
	}
	if got := c.Description(); got != "【ok.txt】\n残った記録" {
		t.Fatalf("description = %q", got)
	}
}

func TestIngestFilesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewComposer()
	if _, err := c.IngestFiles(ctx, []File{memFile("a.txt", []byte("a"))}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.Description() != "" {
		t.Fatal("cancelled ingest must not modify the description")
	}
}

func TestChecklistAndSnapshot(t *testing.T) {
	c := NewComposer()
	frequency := domain.ItemRef{Axis: domain.AxisFrequency, Index: 0}
	manner := domain.ItemRef{Axis: domain.AxisManner, Index: 2}
	content := domain.ItemRef{Axis: domain.AxisContent, Index: 1}

	for _, ref := range []domain.ItemRef{frequency, manner, content} {
		if err := c.Check(ref); err != nil {
			t.Fatalf("Check(%s) failed: %v", ref, err)
		}
	}
	if on, err := c.Toggle(content); err != nil || on {
		t.Fatalf("Toggle should uncheck: on=%v err=%v", on, err)
	}
	c.Uncheck(domain.ItemRef{Axis: domain.AxisContent, Index: 4})
	if err := c.Check(domain.ItemRef{Axis: domain.AxisContent, Index: 9}); err == nil {
		t.Fatal("expected out-of-range item to be rejected")
	}

	events := make(chan SpeechEvent, 1)
	s, _ := c.StartSpeech(context.Background(), events)
	c.AppendText("店頭で")
	events <- SpeechEvent{Kind: SpeechInterim, Text: "大声"}

	// The interim fragment may not be applied yet; stop so the snapshot is stable.
	s.Stop()
	sub := c.Snapshot("  暴言・侮辱・誹謗中傷 ")
	want := Submission{
		Description:  "店頭で大声",
		Category:     "暴言・侮辱・誹謗中傷",
		CheckedItems: []domain.ItemRef{manner, frequency},
		Files:        nil,
	}
	if diff := cmp.Diff(want, sub); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	c.Reset()
	if c.Description() != "" || len(c.Checked()) != 0 {
		t.Fatal("Reset should clear the composer")
	}
}
