// Package slackbot posts incident alerts and monthly digests to Slack.
package slackbot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"tokasu/internal/config"
	"tokasu/internal/domain"
	"tokasu/internal/httpx"
)

const summaryMaxRunes = 120

// NewClient builds a Slack API client on the shared external HTTP client.
func NewClient(token string, opts ...slack.Option) *slack.Client {
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return slack.New(token, opts...)
}

type Notifier struct {
	api       *slack.Client
	channelID string
	threshold int
	mentions  []string
	loc       *time.Location
	users     userDirectory
}

func NewNotifier(api *slack.Client, cfg config.Config) *Notifier {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		api:       api,
		channelID: cfg.SlackAlertChannelID,
		threshold: cfg.SlackAlertThreshold,
		mentions:  cfg.SlackAlertMentions,
		loc:       loc,
	}
}

// NotifyIncident posts an alert when rec is at or above the alert threshold.
func (n *Notifier) NotifyIncident(ctx context.Context, rec domain.IncidentRecord) error {
	if rec.Severity < n.threshold {
		return nil
	}
	tier := domain.Classify(rec.Severity)

	var mentionText string
	if len(n.mentions) > 0 {
		ids, unresolved, err := n.users.mentionIDs(ctx, n.api, n.mentions)
		if err != nil {
			log.Printf("slack alert: mention lookup failed: %v", err)
		}
		if len(unresolved) > 0 {
			log.Printf("slack alert: unresolved mentions=%s", strings.Join(unresolved, ","))
		}
		for _, id := range ids {
			mentionText += "<@" + id + "> "
		}
	}

	headline := fmt.Sprintf("%s:rotating_light: 高深刻度インシデント %d%% (%s)", mentionText, rec.Severity, tier.Label)
	source := "AI判定"
	if rec.Result.Source == domain.SourceFallback {
		source = "簡易判定"
	}
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*報告者*\n"+escapeText(rec.ReporterName), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*行為類型*\n"+escapeText(rec.Category), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*日時*\n"+rec.Date.In(n.loc).Format("2006/01/02 15:04"), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*判定方式*\n"+source, false, false),
	}
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, headline, false, false), nil, nil),
		slack.NewSectionBlock(nil, fields, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*要約*\n"+escapeText(truncateRunes(rec.Result.Summary, summaryMaxRunes)), false, false), nil, nil),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, "incident `"+rec.ID+"`", false, false)),
	}

	_, _, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(headline, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("posting incident alert: %w", err)
	}
	log.Printf("slack alert posted id=%s severity=%d channel=%s", rec.ID, rec.Severity, n.channelID)
	return nil
}

// PostDigest posts the monthly summary for label (e.g. "2026-09").
func (n *Notifier) PostDigest(ctx context.Context, label string, stats domain.IncidentStats) error {
	text := FormatDigest(label, stats)
	if _, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}
	log.Printf("slack digest posted month=%s total=%d", label, stats.Total)
	return nil
}

// mrkdwnEscaper neutralizes control sequences such as <!channel> and <@U123>
// in user-supplied text.
var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return mrkdwnEscaper.Replace(s)
}

func FormatDigest(label string, stats domain.IncidentStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*カスハラ月次サマリー %s*\n", label)
	if stats.Total == 0 {
		b.WriteString("インシデントの記録はありません。")
		return b.String()
	}
	fmt.Fprintf(&b, "インシデント: %d件 / カスハラ該当: %d件 / 高リスク(60%%以上): %d件 / 簡易判定: %d件\n",
		stats.Total, stats.Harassment, stats.HighOrAbove, stats.Fallback)
	fmt.Fprintf(&b, "深刻度 平均 %.1f / 中央値 %.0f / 90パーセンタイル %.0f\n",
		stats.MeanSeverity, stats.MedianSeverity, stats.P90Severity)

	tiers := domain.Tiers()
	for i := len(tiers) - 1; i >= 0; i-- {
		if c := stats.ByTier[tiers[i].Level]; c > 0 {
			fmt.Fprintf(&b, "• %s: %d件\n", tiers[i].Label, c)
		}
	}

	type bucket struct {
		name  string
		count int
	}
	var cats []bucket
	for name, c := range stats.ByCategory {
		cats = append(cats, bucket{name, c})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].count != cats[j].count {
			return cats[i].count > cats[j].count
		}
		return cats[i].name < cats[j].name
	})
	if len(cats) > 0 {
		b.WriteString("行為類型別:")
		for _, c := range cats {
			fmt.Fprintf(&b, " %s %d件", c.name, c.count)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
