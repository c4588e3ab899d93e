package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tokasu/internal/domain"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("LLM_PROVIDER", "offline")
	t.Setenv("DB_PATH", filepath.Join(dir, "tokasu.db"))
	t.Setenv("REPORT_OUTPUT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_ALERT_CHANNEL_ID", "")
	t.Setenv("HOUSEKEEPING_SCHEDULE", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func savedID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Saved:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no Saved line in output:\n%s", out)
	return ""
}

func TestClassifyQuotaIncidentsReportFlow(t *testing.T) {
	dir := setupEnv(t)
	memo := filepath.Join(dir, "memo.txt")
	if err := os.WriteFile(memo, []byte("通話メモ: 同じ要求を3回繰り返した"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "classify", "--user", "u-1", "--name", "山田",
		"--category", "威嚇・脅迫", "--check", "manner:1", "--file", memo,
		"SNSに晒すと脅された")
	if err != nil {
		t.Fatalf("classify failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Severity:  15%") || !strings.Contains(out, "fallback") {
		t.Fatalf("unexpected classify output:\n%s", out)
	}
	id := savedID(t, out)
	if id == "no" {
		t.Fatalf("incident was not saved:\n%s", out)
	}

	out, err = run(t, "quota", "--user", "u-1")
	if err != nil || !strings.Contains(out, "u-1: 99/100") {
		t.Fatalf("quota output %q err=%v", out, err)
	}

	out, err = run(t, "incidents", "--user", "u-1")
	if err != nil || !strings.Contains(out, id) || !strings.Contains(out, "威嚇・脅迫") {
		t.Fatalf("incidents output %q err=%v", out, err)
	}

	out, err = run(t, "incidents", "--stats", "--json")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats domain.IncidentStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %q", out)
	}
	if stats.Total != 1 || stats.Fallback != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	reports := filepath.Join(dir, "out")
	out, err = run(t, "report", "--user", "u-1", "--id", id, "--out", reports)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	path := strings.TrimSpace(out)
	if filepath.Dir(path) != reports || !strings.HasSuffix(path, ".html") {
		t.Fatalf("unexpected report path %q", path)
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(doc), "通話メモ") {
		t.Fatal("report should include the ingested file text")
	}

	if _, err := run(t, "report", "--user", "u-2", "--id", id); !errors.Is(err, domain.ErrIncidentNotFound) {
		t.Fatalf("expected not found for another reporter, got %v", err)
	}
}

func TestClassifyRejectsEmptyAndUnknownInput(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "classify", "--user", "u-1", "   "); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := run(t, "classify", "--user", "u-1", "--category", "不明", "状況"); err == nil {
		t.Fatal("expected unknown category error")
	}
	if _, err := run(t, "classify", "--user", "u-1", "--check", "volume:0", "状況"); err == nil {
		t.Fatal("expected unknown axis error")
	}

	out, err := run(t, "quota", "--user", "u-1")
	if err != nil || !strings.Contains(out, "100/100") {
		t.Fatalf("rejected input must not consume quota: %q err=%v", out, err)
	}
}

func TestPruneWithoutSlack(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "prune", "--digest")
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if !strings.Contains(out, "Pruned 0 quota counters") || !strings.Contains(out, "記録はありません") {
		t.Fatalf("unexpected prune output:\n%s", out)
	}
}

func TestServeRequiresJWTSecret(t *testing.T) {
	setupEnv(t)
	t.Setenv("JWT_SECRET", "")
	if _, err := run(t, "serve"); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}
}
