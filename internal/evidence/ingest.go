package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tokasu/internal/domain"
)

const (
	maxFileBytes     = 10 << 20
	ingestWorkers    = 4
	audioPlaceholder = "音声ファイルが添付されました。内容を文字起こしして追記するか、状況説明と合わせてAI判定を実行してください。"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrUndecodable     = errors.New("file text could not be decoded")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".aac": true,
	".ogg": true, ".oga": true, ".webm": true, ".flac": true,
}

// File is an upload or local file offered for ingestion.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

type SkippedFile struct {
	Name string
	Err  error
}

type IngestReport struct {
	Added   []domain.FileMeta
	Skipped []SkippedFile
}

type ingested struct {
	block string
	meta  domain.FileMeta
	err   error
}

// IngestFiles reads files concurrently and appends their text blocks to the
// description in input order. A file that cannot be read or decoded is
// skipped and reported; the others are still ingested. The returned error is
// non-nil only when ctx is cancelled.
func (c *Composer) IngestFiles(ctx context.Context, files []File) (IngestReport, error) {
	results := make([]ingested, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestWorkers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = readFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestReport{}, fmt.Errorf("ingesting files: %w", err)
	}

	var report IngestReport
	for i, r := range results {
		if r.err != nil {
			log.Printf("evidence ingest skip file=%q err=%v", files[i].Name, r.err)
			report.Skipped = append(report.Skipped, SkippedFile{Name: files[i].Name, Err: r.err})
			continue
		}
		c.appendBlock(r.block, r.meta)
		report.Added = append(report.Added, r.meta)
	}
	log.Printf("evidence ingest added=%d skipped=%d", len(report.Added), len(report.Skipped))
	return report, nil
}

func readFile(f File) ingested {
	rc, err := f.Open()
	if err != nil {
		return ingested{err: fmt.Errorf("opening %s: %w", f.Name, err)}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxFileBytes+1))
	if err != nil {
		return ingested{err: fmt.Errorf("reading %s: %w", f.Name, err)}
	}
	if len(data) > maxFileBytes {
		return ingested{err: ErrFileTooLarge}
	}
	size := int64(len(data))

	mt := mimetype.Detect(data)
	if isAudio(mt, f.Name) {
		return ingested{
			block: "【音声ファイル: " + f.Name + "】\n" + audioPlaceholder,
			meta:  domain.FileMeta{Name: f.Name, Kind: domain.FileKindAudio, Size: size},
		}
	}
	if !isText(mt) {
		return ingested{err: fmt.Errorf("%w: %s", ErrUnsupportedFile, mt.String())}
	}
	text, err := decodeText(data)
	if err != nil {
		return ingested{err: err}
	}
	return ingested{
		block: "【" + f.Name + "】\n" + text,
		meta:  domain.FileMeta{Name: f.Name, Kind: domain.FileKindText, Size: size},
	}
}

func isAudio(mt *mimetype.MIME, name string) bool {
	if strings.HasPrefix(mt.String(), "audio/") {
		return true
	}
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText returns data as UTF-8. BOM-marked Unicode is honoured, plain
// UTF-8 is passed through, and legacy Japanese encodings are tried in turn.
func decodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, bomUTF8) || bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		return string(out), nil
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	// EUC-JP bytes also decode as Shift_JIS, mostly into half-width kana, so
	// the candidate with fewer of them wins.
	best, bestScore := "", -1
	for _, enc := range []encoding.Encoding{japanese.ShiftJIS, japanese.EUCJP} {
		out, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		score := halfwidthKana(out)
		if bestScore < 0 || score < bestScore {
			best, bestScore = string(out), score
		}
	}
	if bestScore < 0 {
		return "", ErrUndecodable
	}
	return best, nil
}

func halfwidthKana(b []byte) int {
	n := 0
	for _, r := range string(b) {
		if r >= 0xFF61 && r <= 0xFF9F {
			n++
		}
	}
	return n
}
