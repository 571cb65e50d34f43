package generation

import (
	"fmt"
	"strings"

	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/pkg/metrics"
)

// 信任等级阈值
const (
	ConfirmedThreshold = 0.85
	PlausibleThreshold = 0.5
)

// TrustLevel 声明的信任等级
type TrustLevel string

const (
	TrustConfirmed   TrustLevel = "confirmed"
	TrustPlausible   TrustLevel = "plausible"
	TrustSpeculative TrustLevel = "speculative"
	TrustUnsupported TrustLevel = "unsupported"
)

// LevelFor 由最佳支撑引用的置信度得到信任等级
func LevelFor(confidence float64) TrustLevel {
	switch {
	case confidence >= ConfirmedThreshold:
		return TrustConfirmed
	case confidence >= PlausibleThreshold:
		return TrustPlausible
	case confidence > 0:
		return TrustSpeculative
	default:
		return TrustUnsupported
	}
}

// TrustAssignment 单条声明的信任评估
type TrustAssignment struct {
	Claim               Claim      `json:"claim"`
	Level               TrustLevel `json:"trust_level"`
	Confidence          float64    `json:"confidence"`
	SupportingCitations []string   `json:"supporting_citations"`
	Reasoning           string     `json:"reasoning"`
}

// TrustAssigner 按声明逐条评估信任，不使用文档级置信度
type TrustAssigner struct{}

func NewTrustAssigner() *TrustAssigner { return &TrustAssigner{} }

// Assign 为每条声明找出支撑引用：引用在原文中的片段落在声明文本内，或声明带有其 [n] 标记。
// 只提到同名术语而不含引用片段的声明不继承其他声明的引用。
func (a *TrustAssigner) Assign(claims []Claim, grounded *grounding.GroundedContent) []TrustAssignment {
	out := make([]TrustAssignment, 0, len(claims))
	var citations []grounding.Citation
	if grounded != nil {
		citations = grounded.Citations
	}

	for _, claim := range claims {
		best := 0.0
		supporting := make([]string, 0)
		for _, c := range citations {
			if !supports(claim.Text, c) {
				continue
			}
			supporting = append(supporting, c.ID)
			if c.Confidence > best {
				best = c.Confidence
			}
		}

		level := LevelFor(best)
		metrics.TrustAssignmentsTotal.WithLabelValues(string(level)).Inc()
		out = append(out, TrustAssignment{
			Claim:               claim,
			Level:               level,
			Confidence:          best,
			SupportingCitations: supporting,
			Reasoning:           reasoning(level, len(supporting), best),
		})
	}
	return out
}

func supports(text string, c grounding.Citation) bool {
	if ref := strings.TrimSpace(c.Reference); ref != "" && strings.Contains(text, ref) {
		return true
	}
	return c.Marker > 0 && strings.Contains(text, fmt.Sprintf("[%d]", c.Marker))
}

func reasoning(level TrustLevel, n int, best float64) string {
	if n == 0 {
		return "No supporting citation found for this claim"
	}
	return fmt.Sprintf("%s: best of %d supporting citation(s) has confidence %.2f", level, n, best)
}
