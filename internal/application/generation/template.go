package generation

import (
	"fmt"
	"sort"
	"strings"
)

// Variable 模板变量定义，模板中以 {{name}} 引用
type Variable struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Required    bool    `yaml:"required" json:"required"`
	Default     *string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Template 生成模板
type Template struct {
	ID            string     `yaml:"id" json:"id"`
	Type          Type       `yaml:"type" json:"type"`
	Version       string     `yaml:"version" json:"version"`
	Description   string     `yaml:"description" json:"description"`
	SystemPrompt  string     `yaml:"system_prompt" json:"system_prompt"`
	UserPrompt    string     `yaml:"user_prompt" json:"user_prompt"`
	OutputFormat  string     `yaml:"output_format,omitempty" json:"output_format,omitempty"`
	ExampleOutput string     `yaml:"example_output,omitempty" json:"example_output,omitempty"`
	Variables     []Variable `yaml:"variables" json:"variables"`
	Temperature   *float32   `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens     *int       `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// RequiredVariables 必填且无默认值的变量名
func (t *Template) RequiredVariables() []string {
	out := make([]string, 0)
	for _, v := range t.Variables {
		if v.Required && v.Default == nil {
			out = append(out, v.Name)
		}
	}
	return out
}

// Render 渲染完整模板文本：system prompt、输出格式、示例与 user prompt
func (t *Template) Render(values map[string]string) (string, error) {
	system, err := t.render(t.SystemPrompt, values)
	if err != nil {
		return "", err
	}
	user, err := t.render(t.UserPrompt, values)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{system, t.OutputFormat, exampleBlock(t.ExampleOutput), user} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func exampleBlock(example string) string {
	if strings.TrimSpace(example) == "" {
		return ""
	}
	return "Example Output:\n" + example
}

// render 替换 {{name}}：传入值优先，其次默认值；必填且缺失时报错，可选缺失时替换为空串。
// 未声明的传入变量同样会被替换。
func (t *Template) render(text string, values map[string]string) (string, error) {
	out := text
	for _, def := range t.Variables {
		placeholder := "{{" + def.Name + "}}"
		if !strings.Contains(text, placeholder) {
			continue
		}
		v, ok := values[def.Name]
		switch {
		case ok:
		case def.Default != nil:
			v = *def.Default
		case def.Required:
			return "", fmt.Errorf("%w: %s (template %s)", ErrTemplateVariable, def.Name, t.ID)
		default:
			v = ""
		}
		out = strings.ReplaceAll(out, placeholder, v)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = strings.ReplaceAll(out, "{{"+k+"}}", values[k])
	}
	return out, nil
}

func (t *Template) validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("unknown template type %q", t.Type)
	}
	if strings.TrimSpace(t.SystemPrompt) == "" && strings.TrimSpace(t.UserPrompt) == "" {
		return fmt.Errorf("template %s has empty prompts", t.ID)
	}
	seen := make(map[string]struct{}, len(t.Variables))
	for _, v := range t.Variables {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("template %s has a variable without name", t.ID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("template %s declares variable %s twice", t.ID, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
