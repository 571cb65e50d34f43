package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"campaign-forge-api/internal/workflow/node"
)

// ClaimType 声明类别
type ClaimType string

const (
	ClaimMechanic  ClaimType = "mechanic"
	ClaimLore      ClaimType = "lore"
	ClaimCharacter ClaimType = "character"
	ClaimNarrative ClaimType = "narrative"
	ClaimGeneral   ClaimType = "general"
)

// Claim 从生成内容中抽取的一条可验证声明
type Claim struct {
	Field string    `json:"field"`
	Text  string    `json:"text"`
	Type  ClaimType `json:"claim_type"`
}

type claimField struct {
	name string
	kind ClaimType
}

// 通用声明字段
var commonClaimFields = []claimField{
	{"stat_block", ClaimMechanic},
	{"stats", ClaimMechanic},
	{"damage", ClaimMechanic},
	{"hp", ClaimMechanic},
	{"ac", ClaimMechanic},
	{"cr", ClaimMechanic},
	{"lore", ClaimLore},
	{"history", ClaimLore},
	{"origin", ClaimLore},
	{"personality", ClaimCharacter},
	{"traits", ClaimCharacter},
	{"motivation", ClaimCharacter},
	{"background", ClaimNarrative},
	{"plot_hooks", ClaimNarrative},
}

// 各生成类型额外关注的字段
var typeClaimFields = map[Type][]claimField{
	TypeCharacter: {
		{"relationships", ClaimCharacter},
		{"locations", ClaimLore},
		{"secrets", ClaimNarrative},
	},
	TypeNPC: {
		{"role", ClaimCharacter},
		{"occupation", ClaimCharacter},
		{"location", ClaimLore},
		{"knowledge", ClaimLore},
		{"secrets", ClaimNarrative},
		{"relationships", ClaimCharacter},
	},
	TypeSession: {
		{"objectives", ClaimNarrative},
		{"scenes", ClaimNarrative},
		{"encounters", ClaimMechanic},
		{"npcs", ClaimCharacter},
		{"rewards", ClaimMechanic},
	},
	TypeParty: {
		{"composition", ClaimMechanic},
		{"gaps", ClaimMechanic},
		{"strengths", ClaimMechanic},
		{"recommendations", ClaimNarrative},
	},
	TypeArc: {
		{"premise", ClaimNarrative},
		{"acts", ClaimNarrative},
		{"antagonist", ClaimCharacter},
		{"themes", ClaimNarrative},
		{"milestones", ClaimNarrative},
	},
}

// ClaimFields 返回生成类型对应的声明字段（通用字段在前）
func ClaimFields(t Type) []string {
	fields := append(append([]claimField{}, commonClaimFields...), typeClaimFields[t]...)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.name)
	}
	return out
}

// ProseField 纯文本输出的声明字段名
const ProseField = "content"

// jsonObjectStart 输出中出现对象起始（{"key）或 json 代码块即视为尝试返回 JSON
var jsonObjectStart = regexp.MustCompile("(?i)\\{\\s*\"|```json")

// ExtractClaims 解析模型输出中的 JSON 对象，并按生成类型抽取声明。
// 未命中任何已知字段时，退化为每个顶层字段一条声明。
// 输出不含 JSON 时按句抽取声明，返回的 data 为 nil；JSON 存在但无法解析时返回错误。
func ExtractClaims(t Type, text string) ([]Claim, json.RawMessage, error) {
	raw, err := node.ExtractJSONObject(text)
	if err != nil {
		if errors.Is(err, node.ErrNoJSONObject) && !jsonObjectStart.MatchString(text) {
			return proseClaims(text), nil, nil
		}
		return nil, nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, fmt.Errorf("failed to decode generated json: %w", err)
	}

	fields := append(append([]claimField{}, commonClaimFields...), typeClaimFields[t]...)
	claims := make([]Claim, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.name]; dup {
			continue
		}
		seen[f.name] = struct{}{}
		v, ok := obj[f.name]
		if !ok {
			continue
		}
		if text := flattenValue(v); text != "" {
			claims = append(claims, Claim{Field: f.name, Text: f.name + ": " + text, Type: f.kind})
		}
	}

	if len(claims) == 0 {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if text := flattenValue(obj[k]); text != "" {
				claims = append(claims, Claim{Field: k, Text: k + ": " + text, Type: ClaimGeneral})
			}
		}
	}
	return claims, raw, nil
}

// proseClaims 每个句子一条声明
func proseClaims(text string) []Claim {
	sentences := splitSentences(text)
	claims := make([]Claim, 0, len(sentences))
	for _, sentence := range sentences {
		claims = append(claims, Claim{Field: ProseField, Text: sentence, Type: ClaimGeneral})
	}
	return claims
}

// splitSentences 按行与句末标点切分。句号后须跟空白与大写字母才断句，
// 因此 "p. 12"、"DC 15." 结尾等写法不会把引用切开。
func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*#>"))
		runes := []rune(line)
		start := 0
		for i := 0; i < len(runes); i++ {
			if !isSentenceEnd(runes[i]) {
				continue
			}
			end := i + 1
			for end < len(runes) && strings.ContainsRune(`"')]`, runes[end]) {
				end++
			}
			if end < len(runes) && !(unicode.IsSpace(runes[end]) && nextIsUpper(runes[end:])) {
				continue
			}
			if s := strings.TrimSpace(string(runes[start:end])); s != "" {
				out = append(out, s)
			}
			start, i = end, end-1
		}
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func nextIsUpper(rs []rune) bool {
	for _, r := range rs {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsUpper(r) || strings.ContainsRune(`"'(`, r)
	}
	return false
}

// EntityName 从生成的 JSON 中取实体名称
func EntityName(data json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"name", "title", "character_name", "npc_name", "arc_name", "session_title"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// flattenValue 将任意 JSON 值展开为可检索的文本
func flattenValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case bool:
		return fmt.Sprintf("%t", x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := flattenValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flattenValue(x[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
