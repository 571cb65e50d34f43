package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"campaign-forge-api/internal/application/grounding"
	llmctx "campaign-forge-api/internal/domain/service"
	"campaign-forge-api/internal/workflow/node"
	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
	"campaign-forge-api/pkg/tracer"
)

var generationTracer = otel.Tracer("generation")

const defaultExcerptLimit = 3

// OrchestratorConfig 生成流程配置
type OrchestratorConfig struct {
	Budget           TokenBudget
	IncludeGrounding bool
	ExcerptLimit     int
}

// DefaultOrchestratorConfig 默认配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Budget:           DefaultTokenBudget(),
		IncludeGrounding: true,
		ExcerptLimit:     defaultExcerptLimit,
	}
}

// Orchestrator 串联一次生成：校验、选模板、组装上下文、调用 LLM、溯源、抽取声明、评估信任、提交草稿。
// 每次 Generate 相互独立，仅共享草稿表与来源使用记录。
type Orchestrator struct {
	cfg       OrchestratorConfig
	validate  *validator.Validate
	templates *TemplateRegistry
	assembler *ContextAssembler
	completer port.Completer
	searcher  port.Searcher
	flavour   *grounding.FlavourSearcher
	snapshots port.SnapshotLoader
	grounder  grounding.Grounder
	trust     *TrustAssigner
	drafts    *AcceptanceManager
}

// NewOrchestrator 创建 Orchestrator；searcher 与 snapshots 可为 nil
func NewOrchestrator(
	cfg OrchestratorConfig,
	templates *TemplateRegistry,
	completer port.Completer,
	searcher port.Searcher,
	snapshots port.SnapshotLoader,
	grounder grounding.Grounder,
	drafts *AcceptanceManager,
) *Orchestrator {
	if cfg.ExcerptLimit <= 0 {
		cfg.ExcerptLimit = defaultExcerptLimit
	}
	var flavour *grounding.FlavourSearcher
	if searcher != nil {
		flavour = grounding.NewFlavourSearcher(searcher)
	}
	return &Orchestrator{
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		templates: templates,
		assembler: NewContextAssembler(),
		completer: completer,
		searcher:  searcher,
		flavour:   flavour,
		snapshots: snapshots,
		grounder:  grounder,
		trust:     NewTrustAssigner(),
		drafts:    drafts,
	}
}

// Drafts 草稿管理器
func (o *Orchestrator) Drafts() *AcceptanceManager { return o.drafts }

// Templates 模板注册表
func (o *Orchestrator) Templates() *TemplateRegistry { return o.templates }

// Generate 执行完整生成流程。propose 之前的任意阶段都响应 ctx 取消；propose 之后忽略取消。
func (o *Orchestrator) Generate(ctx context.Context, req *Request) (resp *Response, err error) {
	ctx, span := generationTracer.Start(ctx, "generation.Generate")
	defer span.End()

	typ := "unknown"
	if req != nil {
		typ = string(req.Type)
		ctx = logger.WithContext(ctx, logger.CampaignIDKey, req.CampaignID)
		ctx = logger.WithContext(ctx, logger.GenerationTypeKey, typ)
		ctx = llmctx.WithCampaign(ctx, req.CampaignID)
		span.SetAttributes(
			attribute.String("generation.type", typ),
			attribute.String("campaign.id", req.CampaignID),
		)
	}
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			tracer.RecordError(span, err)
			logger.Error(ctx, "generation failed", err)
		}
		metrics.GenerationRequestsTotal.WithLabelValues(typ, status).Inc()
	}()

	// 1. 校验
	if req == nil {
		return nil, stageError(ErrInvalidRequest, fmt.Errorf("request is nil"))
	}
	if err := o.validate.Struct(req); err != nil {
		return nil, stageError(ErrInvalidRequest, err)
	}

	// 2. 模板
	tpl, err := o.templates.Get(req.Type)
	if err != nil {
		return nil, stageError(ErrNoTemplate, err)
	}

	// 3. 上下文
	var assembled *AssembledContext
	if err := o.stage(ctx, "context", func(ctx context.Context) error {
		var e error
		assembled, e = o.assemble(ctx, req, tpl)
		return e
	}); err != nil {
		return nil, stageError(ErrContextFailure, err)
	}
	metrics.ContextTokensAssembled.WithLabelValues(typ).Observe(float64(assembled.TotalTokens))

	// 4. LLM
	var content string
	if err := o.stage(ctx, "llm", func(ctx context.Context) error {
		var e error
		content, e = o.completer.Complete(ctx, assembled.Prompt(), o.completionTokens(tpl))
		return e
	}); err != nil {
		return nil, stageError(ErrLLMFailure, err)
	}

	// 5. 溯源：仅传输错误失败，未命中不算错误
	var grounded *grounding.GroundedContent
	if err := o.stage(ctx, "grounding", func(ctx context.Context) error {
		var e error
		grounded, e = o.ground(ctx, content, req.CampaignID)
		return e
	}); err != nil {
		return nil, stageError(ErrGroundingFailure, err)
	}

	// 6. 声明抽取
	claims, data, err := ExtractClaims(req.Type, content)
	if err != nil {
		return nil, stageError(ErrClaimExtraction, err)
	}

	// 7. 信任评估
	trust := o.trust.Assign(claims, grounded)

	// 8. propose 之前最后一次检查取消
	if err := ctx.Err(); err != nil {
		return nil, stageError(ErrProposeFailure, err)
	}

	// 9. 提交草稿，之后不再响应取消
	proposeCtx := context.WithoutCancel(ctx)
	draft, err := o.drafts.Propose(proposeCtx, ProposeInput{
		CampaignID:  req.CampaignID,
		Type:        req.Type,
		TemplateID:  tpl.ID,
		RequestedBy: req.RequestedBy,
		Content:     content,
		Data:        data,
		Grounded:    grounded,
		Trust:       trust,
	})
	if err != nil {
		return nil, stageError(ErrProposeFailure, err)
	}

	logger.Info(proposeCtx, "draft proposed",
		"draft_id", draft.ID,
		"citations", len(draft.Citations),
		"ungrounded", len(draft.UngroundedReferences),
		"context_tokens", assembled.TotalTokens,
	)

	return &Response{
		DraftID:              draft.ID,
		Type:                 req.Type,
		TemplateID:           tpl.ID,
		Content:              content,
		Data:                 data,
		MarkedText:           draft.MarkedText,
		Citations:            draft.Citations,
		TrustAssignments:     draft.TrustAssignments,
		UngroundedReferences: draft.UngroundedReferences,
		Confidence:           draft.Confidence,
		ContextTokens:        assembled.TotalTokens,
	}, nil
}

// stage 记录阶段耗时；阶段开始前检查取消
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := generationTracer.Start(ctx, "generation.stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.GenerationStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		tracer.RecordError(span, err)
	}
	return err
}

func (o *Orchestrator) assemble(ctx context.Context, req *Request, tpl *Template) (*AssembledContext, error) {
	var snapshot *port.CampaignSnapshot
	if o.snapshots != nil {
		s, err := o.snapshots.LoadSnapshot(ctx, req.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("failed to load campaign snapshot: %w", err)
		}
		snapshot = s
	}

	excerpts, err := o.excerpts(ctx, req)
	if err != nil {
		return nil, err
	}

	rendered, err := tpl.Render(templateValues(req, snapshot))
	if err != nil {
		return nil, err
	}

	return o.assembler.Assemble(AssembleInput{
		Snapshot: snapshot,
		Excerpts: excerpts,
		Template: rendered,
		Request:  req,
		Budget:   o.cfg.Budget,
	})
}

// excerpts 取规则书与战役笔记中与请求相关的片段
func (o *Orchestrator) excerpts(ctx context.Context, req *Request) ([]string, error) {
	if !o.cfg.IncludeGrounding || o.searcher == nil {
		return nil, nil
	}
	query := strings.TrimSpace(req.FreeText)
	if query == "" {
		query = string(req.Type)
	}

	requests := []port.SearchRequest{
		{Scope: port.ScopeRules, Query: query, Limit: o.cfg.ExcerptLimit},
		{
			Scope:  port.ScopeCampaign,
			Query:  query,
			Filter: (&grounding.FlavourFilters{CampaignID: req.CampaignID}).FilterString(),
			Limit:  o.cfg.ExcerptLimit,
		},
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, 2*o.cfg.ExcerptLimit)
	for _, sr := range requests {
		hits, err := o.searcher.Search(ctx, sr)
		if err != nil {
			return nil, fmt.Errorf("failed to search %s excerpts: %w", sr.Scope, err)
		}
		for _, h := range hits {
			if _, dup := seen[h.ID]; dup {
				continue
			}
			seen[h.ID] = struct{}{}
			out = append(out, excerptLine(h))
		}
	}

	flavour, err := o.flavourExcerpts(ctx, req.Type, query)
	if err != nil {
		return nil, err
	}
	return append(out, flavour...), nil
}

// flavourExcerpts NPC 附带设定中已有的人名，场次附带已知地点，避免与设定冲突
func (o *Orchestrator) flavourExcerpts(ctx context.Context, typ Type, query string) ([]string, error) {
	switch typ {
	case TypeNPC, TypeCharacter:
		names, err := o.flavour.SearchNames(ctx, grounding.NamePerson, nil, o.cfg.ExcerptLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to search setting names: %w", err)
		}
		out := make([]string, 0, len(names))
		for _, n := range names {
			out = append(out, fmt.Sprintf("Established %s name: %s (%s)", n.NameType, n.Name, n.Source))
		}
		return out, nil
	case TypeSession, TypeArc:
		locations, err := o.flavour.SearchLocations(ctx, query, nil, o.cfg.ExcerptLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to search setting locations: %w", err)
		}
		out := make([]string, 0, len(locations))
		for _, l := range locations {
			out = append(out, fmt.Sprintf("Known %s: %s. %s (%s)", l.LocationType, l.Name, l.Description, l.Citation.SourceName))
		}
		return out, nil
	}
	return nil, nil
}

func (o *Orchestrator) ground(ctx context.Context, content, campaignID string) (*grounding.GroundedContent, error) {
	if o.grounder == nil {
		return &grounding.GroundedContent{
			Text:                 content,
			MarkedText:           content,
			Citations:            []grounding.Citation{},
			UngroundedReferences: []grounding.Reference{},
		}, nil
	}
	return o.grounder.Ground(ctx, content, campaignID)
}

// completionTokens 模板 max_tokens 优先，其次预算预留
func (o *Orchestrator) completionTokens(tpl *Template) int {
	if tpl != nil && tpl.MaxTokens != nil && *tpl.MaxTokens > 0 {
		if *tpl.MaxTokens < o.cfg.Budget.ReservedForCompletion {
			return *tpl.MaxTokens
		}
	}
	return o.cfg.Budget.ReservedForCompletion
}

func templateValues(req *Request, s *port.CampaignSnapshot) map[string]string {
	values := make(map[string]string, len(req.Parameters)+8)
	for k, v := range req.Parameters {
		values[k] = v
	}
	values["generation_type"] = string(req.Type)
	values["free_text"] = req.FreeText
	values["campaign_id"] = req.CampaignID
	if s != nil {
		setIfEmpty(values, "campaign_name", s.Name)
		setIfEmpty(values, "game_system", s.GameSystem)
		setIfEmpty(values, "setting", s.Setting)
		setIfEmpty(values, "tone", s.Tone)
	}
	return values
}

func setIfEmpty(m map[string]string, k, v string) {
	if _, ok := m[k]; ok || strings.TrimSpace(v) == "" {
		return
	}
	m[k] = v
}

func excerptLine(h port.SearchHit) string {
	text := node.TruncateByRunes(strings.TrimSpace(h.Content), 400)
	name := strings.TrimSpace(h.Source.SourceName)
	if name == "" {
		return text
	}
	if h.Source.Page != nil {
		return fmt.Sprintf("%s (%s, p.%d)", text, name, *h.Source.Page)
	}
	return fmt.Sprintf("%s (%s)", text, name)
}
