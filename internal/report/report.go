// Package report renders a persisted incident as a printable, confidential
// judgment report.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"tokasu/internal/domain"
)

type Renderer interface {
	Render(ctx context.Context, rec domain.IncidentRecord) ([]byte, error)
	Extension() string
}

// HTMLRenderer produces a self-contained HTML document suitable for printing.
type HTMLRenderer struct {
	Organization string
	Location     *time.Location
}

type reportView struct {
	Organization string
	ReportedAt   string
	Reporter     string
	Category     string
	Harassment   bool
	Severity     int
	Tier         domain.Tier
	Result       domain.ClassificationResult
	Fallback     bool
	Description  string
	Criteria     []string
	Files        []fileView
	TierCSS      template.CSS
}

type fileView struct {
	Name string
	Kind string
	Size string
}

func (r HTMLRenderer) Extension() string { return "html" }

func (r HTMLRenderer) Render(_ context.Context, rec domain.IncidentRecord) ([]byte, error) {
	if !rec.Complete() {
		return nil, domain.ErrIncompleteRecord
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	view := reportView{
		Organization: r.Organization,
		ReportedAt:   rec.Date.In(loc).Format("2006/01/02 15:04"),
		Reporter:     rec.ReporterName,
		Category:     rec.Category,
		Harassment:   rec.Result.IsHarassment,
		Severity:     rec.Severity,
		Tier:         domain.Classify(rec.Severity),
		Result:       rec.Result,
		Fallback:     rec.Result.Source == domain.SourceFallback,
		Description:  rec.Description,
		Criteria:     rec.CheckedCriteria,
		TierCSS:      tierCSS(),
	}
	if view.Reporter == "" {
		view.Reporter = rec.ReporterID
	}
	if view.Category == "" {
		view.Category = domain.Unclassified
	}
	for _, f := range rec.AttachedFiles {
		kind := "テキスト"
		if f.Kind == domain.FileKindAudio {
			kind = "音声"
		}
		view.Files = append(view.Files, fileView{Name: f.Name, Kind: kind, Size: humanSize(f.Size)})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("rendering report %s: %w", rec.ID, err)
	}
	return buf.Bytes(), nil
}

func tierCSS() template.CSS {
	var b strings.Builder
	for _, t := range domain.Tiers() {
		fmt.Fprintf(&b, ".tier-%s{background:%s}", t.Level, t.Color)
	}
	return template.CSS(b.String())
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="ja"><head><meta charset="utf-8"><title>カスハラ判定報告書</title>
<style>
body{font-family:'Noto Sans JP','Hiragino Kaku Gothic Pro',sans-serif;padding:44px 52px;font-size:13px;color:#333;line-height:1.8;max-width:780px;margin:0 auto}
h1{font-size:20px;text-align:center;border-bottom:3px solid #0F172A;padding-bottom:8px;margin-bottom:16px}
h2{font-size:15px;border-left:4px solid #1D4ED8;padding-left:10px;margin:20px 0 8px}
table{width:100%;border-collapse:collapse;margin:10px 0}
th{background:#0F172A;color:#FFF;padding:6px 10px;text-align:left;font-size:12px;width:140px;vertical-align:top}
td{padding:6px 10px;border:1px solid #E2E8F0;font-size:12px;vertical-align:top;white-space:pre-wrap}
.sev{display:inline-block;padding:4px 12px;border-radius:4px;font-weight:700;font-size:14px;color:#FFF}
.yes{background:#B91C1C}.no{background:#15803D}
.box{background:#F8FAFC;border:1px solid #E2E8F0;border-left:4px solid #1D4ED8;padding:10px 14px;margin:8px 0;border-radius:3px;white-space:pre-wrap}
.warn{border-left-color:#B91C1C}
.note{font-size:11px;color:#B91C1C;margin-top:16px}
.conf{text-align:right;font-size:12px;color:#B91C1C;font-weight:700;margin-bottom:8px}
.sign td{height:44px}
{{.TierCSS}}
@media print{body{padding:20px 30px}}
</style></head><body>
<div class="conf">社外秘</div>
<h1>カスタマーハラスメント 判定報告書</h1>
<table>
<tr><th>報告日時</th><td>{{.ReportedAt}}</td></tr>
{{if .Organization}}<tr><th>事業者</th><td>{{.Organization}}</td></tr>{{end}}
<tr><th>報告者</th><td>{{.Reporter}}</td></tr>
<tr><th>行為類型</th><td>{{.Category}}</td></tr>
</table>
<h2>1. 判定結果</h2>
<table>
<tr><th>カスハラ判定</th><td>{{if .Harassment}}<span class="sev yes">カスハラ該当</span>{{else}}<span class="sev no">非該当</span>{{end}}</td></tr>
<tr><th>深刻度</th><td><span class="sev tier-{{.Tier.Level}}">{{.Severity}}% / {{.Tier.Label}}</span></td></tr>
<tr><th>要約</th><td style="font-weight:700">{{.Result.Summary}}</td></tr>
{{if .Fallback}}<tr><th>判定方式</th><td>簡易判定（AI未接続）</td></tr>{{end}}
</table>
<h2>2. 詳細分析</h2>
<div class="box">{{.Result.Analysis}}</div>
<h2>3. 推奨対応</h2>
<div class="box">{{.Result.Recommendation}}</div>
<h2>4. 法的リスク</h2>
<div class="box warn">{{.Result.LegalRisk}}</div>
<h2>5. 対応フロー</h2>
<div class="box">{{.Result.ResponseFlow}}</div>
<h2>6. 状況詳細（入力内容）</h2>
<div class="box">{{.Description}}</div>
{{if .Criteria}}<h2>7. チェック済み判断基準</h2>
<ul>{{range .Criteria}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Files}}<h2>添付ファイル</h2>
<table>{{range .Files}}<tr><th>{{.Kind}}</th><td>{{.Name}} ({{.Size}})</td></tr>{{end}}</table>{{end}}
<table class="sign" style="margin-top:24px">
<tr><th>報告者署名</th><td></td></tr>
<tr><th>監督者確認</th><td></td></tr>
<tr><th>対応完了日</th><td></td></tr>
</table>
<p class="note">※本報告書は社外秘として厳重に管理します。AI判定結果は参考情報であり、最終判断は現場監督者が行ってください。</p>
</body></html>
`))
