package generation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// TemplateRegistry 按生成类型缓存模板。
// 读取无锁；Reload 构建新表后整体原子替换，失败时保留旧表。
type TemplateRegistry struct {
	dir       string
	templates atomic.Pointer[map[Type]*Template]
	reloadMu  sync.Mutex
}

// LoadTemplateRegistry 从目录加载全部模板
func LoadTemplateRegistry(dir string) (*TemplateRegistry, error) {
	r := &TemplateRegistry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewTemplateRegistry 直接使用给定模板构建（不关联目录）
func NewTemplateRegistry(templates ...*Template) (*TemplateRegistry, error) {
	m := make(map[Type]*Template, len(templates))
	for _, t := range templates {
		if t == nil {
			continue
		}
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
		}
		m[t.Type] = t
	}
	r := &TemplateRegistry{}
	r.templates.Store(&m)
	return r, nil
}

// Dir 模板目录
func (r *TemplateRegistry) Dir() string { return r.dir }

// Get 返回指定类型的模板
func (r *TemplateRegistry) Get(t Type) (*Template, error) {
	m := r.templates.Load()
	if m != nil {
		if tpl, ok := (*m)[t]; ok {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, t)
}

// List 按类型顺序返回已加载模板
func (r *TemplateRegistry) List() []*Template {
	m := r.templates.Load()
	if m == nil {
		return nil
	}
	out := make([]*Template, 0, len(*m))
	for _, t := range AllTypes {
		if tpl, ok := (*m)[t]; ok {
			out = append(out, tpl)
		}
	}
	return out
}

// Reload 重新读取目录并原子替换缓存
func (r *TemplateRegistry) Reload() error {
	if strings.TrimSpace(r.dir) == "" {
		return fmt.Errorf("%w: template directory not configured", ErrTemplateParse)
	}
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	m, err := loadTemplateDir(r.dir)
	if err != nil {
		return err
	}
	r.templates.Store(&m)
	return nil
}

func loadTemplateDir(dir string) (map[Type]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read template dir %s: %v", ErrTemplateParse, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make(map[Type]*Template, len(AllTypes))
	for _, name := range names {
		path := filepath.Join(dir, name)
		tpl, err := parseTemplateFile(path)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			continue
		}
		if prev, dup := out[tpl.Type]; dup {
			return nil, fmt.Errorf("%w: %s duplicates template type %s (already %s)", ErrTemplateParse, path, tpl.Type, prev.ID)
		}
		out[tpl.Type] = tpl
	}
	return out, nil
}

// parseTemplateFile 解析单个模板文件；type 字段优先，其次按文件名推断。
// 两者都无法确定类型时返回 nil（非模板文件）。
func parseTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrTemplateParse, path, err)
	}

	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateParse, path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.TrimSpace(string(tpl.Type)) == "" {
		t, err := ParseType(base)
		if err != nil {
			return nil, nil
		}
		tpl.Type = t
	} else {
		t, err := ParseType(string(tpl.Type))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateParse, path, err)
		}
		tpl.Type = t
	}
	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = base
	}
	if strings.TrimSpace(tpl.Version) == "" {
		tpl.Version = "1.0.0"
	}
	if err := tpl.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateParse, path, err)
	}
	return &tpl, nil
}
