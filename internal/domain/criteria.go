package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type AxisID string

const (
	AxisManner    AxisID = "manner"
	AxisContent   AxisID = "content"
	AxisFrequency AxisID = "frequency"
)

// Axis is one dimension of the harassment rubric.
type Axis struct {
	ID    AxisID   `json:"id"`
	Label string   `json:"label"`
	Items []string `json:"items"`
}

type ItemRef struct {
	Axis  AxisID
	Index int
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Axis, r.Index)
}

var rubric = []Axis{
	{
		ID:    AxisManner,
		Label: "要求態様",
		Items: []string{
			"侮辱的な暴言・差別的・性的な言動を伴う",
			"暴力や脅迫を伴う苦情である",
			"恐怖心を与える口調・大声・攻撃的意図がある",
			"従業員の顔等を無断撮影・SNS公開する行為",
		},
	},
	{
		ID:    AxisContent,
		Label: "要求内容",
		Items: []string{
			"不当な金品の要求がある",
			"土下座での謝罪の要求がある",
			"書面での謝罪の要求がある",
			"従業員の解雇の要求がある",
			"社会通念上相当な範囲を超える対応の強要",
		},
	},
	{
		ID:    AxisFrequency,
		Label: "時間・回数・頻度",
		Items: []string{
			"迷惑行為が30分以上継続している",
			"退去命令を2回以上したにも関わらず居座り続けている",
			"対応不可の要求が3回以上続いている",
			"業務時間外の早朝・深夜に苦情がある",
		},
	},
}

var categories = []string{
	"暴力行為",
	"暴言・侮辱・誹謗中傷",
	"威嚇・脅迫",
	"人格否定・差別的発言",
	"土下座の要求",
	"長時間拘束",
	"過剰な対応の強要",
	"不当・過剰な要求",
	"SNS等への信用棄損投稿",
	"セクハラ・ストーキング",
	"その他",
}

// Axes returns a copy of the rubric in display order.
func Axes() []Axis {
	out := make([]Axis, len(rubric))
	for i, a := range rubric {
		out[i] = Axis{ID: a.ID, Label: a.Label, Items: append([]string(nil), a.Items...)}
	}
	return out
}

// CriteriaCount is the total number of checklist items across all axes.
func CriteriaCount() int {
	n := 0
	for _, a := range rubric {
		n += len(a.Items)
	}
	return n
}

func axisPosition(id AxisID) int {
	for i, a := range rubric {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func Lookup(ref ItemRef) (string, error) {
	pos := axisPosition(ref.Axis)
	if pos < 0 {
		return "", fmt.Errorf("unknown rubric axis %q", ref.Axis)
	}
	items := rubric[pos].Items
	if ref.Index < 0 || ref.Index >= len(items) {
		return "", fmt.Errorf("rubric item %s out of range (axis has %d items)", ref, len(items))
	}
	return items[ref.Index], nil
}

// ParseItemRef accepts "axis:index", e.g. "content:1".
func ParseItemRef(s string) (ItemRef, error) {
	axis, idx, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ItemRef{}, fmt.Errorf("invalid rubric item %q: want axis:index", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(idx))
	if err != nil {
		return ItemRef{}, fmt.Errorf("invalid rubric item %q: %w", s, err)
	}
	ref := ItemRef{Axis: AxisID(strings.ToLower(strings.TrimSpace(axis))), Index: n}
	if _, err := Lookup(ref); err != nil {
		return ItemRef{}, err
	}
	return ref, nil
}

// Labels resolves refs to labels in rubric order, dropping duplicates.
func Labels(refs []ItemRef) ([]string, error) {
	seen := make(map[ItemRef]bool, len(refs))
	uniq := make([]ItemRef, 0, len(refs))
	for _, ref := range refs {
		if _, err := Lookup(ref); err != nil {
			return nil, err
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		uniq = append(uniq, ref)
	}
	sort.Slice(uniq, func(i, j int) bool {
		pi, pj := axisPosition(uniq[i].Axis), axisPosition(uniq[j].Axis)
		if pi != pj {
			return pi < pj
		}
		return uniq[i].Index < uniq[j].Index
	})
	out := make([]string, len(uniq))
	for i, ref := range uniq {
		out[i], _ = Lookup(ref)
	}
	return out, nil
}

// Categories returns the enumerated incident-type labels.
func Categories() []string {
	return append([]string(nil), categories...)
}

func IsKnownCategory(c string) bool {
	for _, known := range categories {
		if known == c {
			return true
		}
	}
	return false
}
