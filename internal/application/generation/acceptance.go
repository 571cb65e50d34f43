package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
	"campaign-forge-api/pkg/tracer"
)

// DraftState 草稿状态
type DraftState int32

const (
	DraftProposed DraftState = iota + 1
	DraftApplying
	DraftAccepted
	DraftRejected
)

func (s DraftState) String() string {
	switch s {
	case DraftProposed:
		return "proposed"
	case DraftApplying:
		return "applying"
	case DraftAccepted:
		return "accepted"
	case DraftRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal 终态草稿只读
func (s DraftState) Terminal() bool {
	return s == DraftAccepted || s == DraftRejected
}

// ParseDraftState 解析状态名
func ParseDraftState(s string) (DraftState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proposed":
		return DraftProposed, nil
	case "applying":
		return DraftApplying, nil
	case "accepted":
		return DraftAccepted, nil
	case "rejected":
		return DraftRejected, nil
	}
	return 0, fmt.Errorf("unknown draft state %q", s)
}

func (s DraftState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// DraftActionKind 草稿操作类型
type DraftActionKind string

const (
	ActionAccept DraftActionKind = "accept"
	ActionReject DraftActionKind = "reject"
	ActionModify DraftActionKind = "modify"
)

// DraftAction 审阅者对草稿的操作；Modify 时 NewContent 为替换内容
type DraftAction struct {
	Kind       DraftActionKind
	NewContent string
}

func Accept() DraftAction { return DraftAction{Kind: ActionAccept} }
func Reject() DraftAction { return DraftAction{Kind: ActionReject} }
func Modify(newContent string) DraftAction {
	return DraftAction{Kind: ActionModify, NewContent: newContent}
}

// Draft 草稿快照（对外只读视图）
type Draft struct {
	ID                   string                `json:"draft_id"`
	CampaignID           string                `json:"campaign_id"`
	Type                 Type                  `json:"generation_type"`
	TemplateID           string                `json:"template_id"`
	RequestedBy          string                `json:"requested_by"`
	State                DraftState            `json:"state"`
	Content              string                `json:"content"`
	Data                 json.RawMessage       `json:"data,omitempty"`
	MarkedText           string                `json:"marked_text"`
	Citations            []grounding.Citation  `json:"citations"`
	TrustAssignments     []TrustAssignment     `json:"trust_assignments"`
	UngroundedReferences []grounding.Reference `json:"ungrounded_references"`
	Confidence           float64               `json:"confidence"`
	Revision             int                   `json:"revision"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// AppliedEntity Accept 后写入战役的实体
type AppliedEntity struct {
	EntityID   string    `json:"entity_id"`
	DraftID    string    `json:"draft_id"`
	CampaignID string    `json:"campaign_id"`
	EntityType string    `json:"entity_type"`
	Name       string    `json:"name"`
	AppliedAt  time.Time `json:"applied_at"`
}

// ActionResult 草稿操作结果；仅 Accept 时 Applied 非空
type ActionResult struct {
	Draft   *Draft         `json:"draft"`
	Applied *AppliedEntity `json:"applied_entity,omitempty"`
}

// ProposeInput 创建草稿所需内容
type ProposeInput struct {
	CampaignID  string
	Type        Type
	TemplateID  string
	RequestedBy string
	Content     string
	Data        json.RawMessage
	Grounded    *grounding.GroundedContent
	Trust       []TrustAssignment
}

// DraftRepository 草稿持久化（可选）。LoadDraft 在草稿不存在时返回 ErrDraftNotFound。
type DraftRepository interface {
	SaveDraft(ctx context.Context, d *Draft) error
	LoadDraft(ctx context.Context, draftID string) (*Draft, error)
	ListDrafts(ctx context.Context, campaignID string) ([]*Draft, error)
}

// DraftEventType 草稿事件类型
type DraftEventType string

const (
	EventDraftProposed DraftEventType = "draft.proposed"
	EventDraftAccepted DraftEventType = "draft.accepted"
	EventDraftRejected DraftEventType = "draft.rejected"
	EventDraftModified DraftEventType = "draft.modified"
)

// DraftEvent 草稿生命周期事件
type DraftEvent struct {
	Type           DraftEventType `json:"type"`
	DraftID        string         `json:"draft_id"`
	CampaignID     string         `json:"campaign_id"`
	GenerationType Type           `json:"generation_type"`
	EntityID       string         `json:"entity_id,omitempty"`
	EntityName     string         `json:"entity_name,omitempty"`
	Content        string         `json:"content,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// EventPublisher 草稿事件发布（可选，尽力而为）
type EventPublisher interface {
	PublishDraftEvent(ctx context.Context, ev DraftEvent) error
}

type draftEntry struct {
	state atomic.Int32

	mu    sync.RWMutex
	draft Draft
}

func (e *draftEntry) snapshot() *Draft {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := e.draft
	d.State = DraftState(e.state.Load())
	d.Citations = append([]grounding.Citation(nil), e.draft.Citations...)
	d.TrustAssignments = append([]TrustAssignment(nil), e.draft.TrustAssignments...)
	d.UngroundedReferences = append([]grounding.Reference(nil), e.draft.UngroundedReferences...)
	return &d
}

// AcceptanceManager 管理草稿生命周期。
// 草稿表由 RWMutex 保护成员关系；每个草稿的状态用 CAS 迁移，同一草稿的操作线性化。
type AcceptanceManager struct {
	store    port.CampaignStore
	grounder grounding.Grounder
	trust    *TrustAssigner

	repo      DraftRepository
	publisher EventPublisher
	now       func() time.Time

	mu     sync.RWMutex
	drafts map[string]*draftEntry
}

// AcceptanceOption AcceptanceManager 可选配置
type AcceptanceOption func(*AcceptanceManager)

func WithDraftRepository(repo DraftRepository) AcceptanceOption {
	return func(m *AcceptanceManager) { m.repo = repo }
}

func WithEventPublisher(p EventPublisher) AcceptanceOption {
	return func(m *AcceptanceManager) { m.publisher = p }
}

func WithClock(now func() time.Time) AcceptanceOption {
	return func(m *AcceptanceManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewAcceptanceManager 创建 AcceptanceManager；grounder 用于 Modify 时重新溯源
func NewAcceptanceManager(store port.CampaignStore, grounder grounding.Grounder, opts ...AcceptanceOption) *AcceptanceManager {
	m := &AcceptanceManager{
		store:    store,
		grounder: grounder,
		trust:    NewTrustAssigner(),
		now:      time.Now,
		drafts:   make(map[string]*draftEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Propose 创建 Proposed 状态的草稿
func (m *AcceptanceManager) Propose(ctx context.Context, in ProposeInput) (*Draft, error) {
	ctx, span := generationTracer.Start(ctx, "generation.Propose")
	defer span.End()

	if strings.TrimSpace(in.CampaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	now := m.now().UTC()
	e := &draftEntry{draft: Draft{
		ID:          uuid.NewString(),
		CampaignID:  in.CampaignID,
		Type:        in.Type,
		TemplateID:  in.TemplateID,
		RequestedBy: in.RequestedBy,
		Content:     in.Content,
		Data:        in.Data,
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	setGrounding(&e.draft, in.Content, in.Grounded, in.Trust)
	e.state.Store(int32(DraftProposed))

	d := e.snapshot()
	if m.repo != nil {
		if err := m.repo.SaveDraft(ctx, d); err != nil {
			tracer.RecordError(span, err)
			return nil, fmt.Errorf("failed to save draft: %w", err)
		}
	}

	m.mu.Lock()
	m.drafts[d.ID] = e
	m.mu.Unlock()

	metrics.DraftTransitionsTotal.WithLabelValues("propose", "ok").Inc()
	m.publish(ctx, d, EventDraftProposed, nil)
	return d, nil
}

// Apply 执行审阅操作
func (m *AcceptanceManager) Apply(ctx context.Context, draftID string, action DraftAction) (*ActionResult, error) {
	ctx, span := generationTracer.Start(ctx, "generation.ApplyDraftAction")
	defer span.End()
	ctx = logger.WithContext(ctx, logger.DraftIDKey, draftID)

	e, err := m.entry(ctx, draftID)
	if err != nil {
		metrics.DraftTransitionsTotal.WithLabelValues(string(action.Kind), transitionResult(err)).Inc()
		tracer.RecordError(span, err)
		return nil, err
	}

	var res *ActionResult
	switch action.Kind {
	case ActionAccept:
		res, err = m.accept(ctx, e)
	case ActionReject:
		res, err = m.reject(ctx, e)
	case ActionModify:
		res, err = m.modify(ctx, e, action.NewContent)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action.Kind)
	}

	metrics.DraftTransitionsTotal.WithLabelValues(string(action.Kind), transitionResult(err)).Inc()
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

// Get 返回草稿快照；内存表未命中时从持久化层载入
func (m *AcceptanceManager) Get(ctx context.Context, draftID string) (*Draft, error) {
	e, err := m.entry(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return e.snapshot(), nil
}

// List 按创建时间列出战役的草稿；states 为空时不过滤。
// 配置了持久化时先把该战役已保存的草稿并入内存表，内存中的条目优先。
func (m *AcceptanceManager) List(ctx context.Context, campaignID string, states ...DraftState) ([]*Draft, error) {
	if m.repo != nil && campaignID != "" {
		stored, err := m.repo.ListDrafts(ctx, campaignID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stored drafts: %w", err)
		}
		for _, d := range stored {
			m.adopt(d)
		}
	}

	m.mu.RLock()
	entries := make([]*draftEntry, 0, len(m.drafts))
	for _, e := range m.drafts {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*Draft, 0, len(entries))
	for _, e := range entries {
		d := e.snapshot()
		if campaignID != "" && d.CampaignID != campaignID {
			continue
		}
		if len(states) > 0 && !containsState(states, d.State) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *AcceptanceManager) entry(ctx context.Context, draftID string) (*draftEntry, error) {
	m.mu.RLock()
	e, ok := m.drafts[draftID]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	if m.repo != nil {
		d, err := m.repo.LoadDraft(ctx, draftID)
		switch {
		case err == nil:
			return m.adopt(d), nil
		case !errors.Is(err, ErrDraftNotFound):
			return nil, fmt.Errorf("failed to load draft %s: %w", draftID, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
}

// adopt 把持久化的草稿放入内存表并返回其条目；已存在时保留内存中的条目。
// 保存时处于 Applying 的草稿说明上次 Accept 未完成，恢复为 Proposed。
func (m *AcceptanceManager) adopt(d *Draft) *draftEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.drafts[d.ID]; ok {
		return e
	}

	state := d.State
	if state != DraftAccepted && state != DraftRejected {
		state = DraftProposed
	}
	e := &draftEntry{draft: *d}
	e.state.Store(int32(state))
	m.drafts[d.ID] = e
	return e
}

// begin CAS from -> to；失败时区分终态与并发占用
func (e *draftEntry) begin(to DraftState) error {
	if e.state.CompareAndSwap(int32(DraftProposed), int32(to)) {
		return nil
	}
	cur := DraftState(e.state.Load())
	if cur.Terminal() {
		return fmt.Errorf("%w: draft is %s", ErrInvalidTransition, cur)
	}
	return ErrDraftBusy
}

func (m *AcceptanceManager) accept(ctx context.Context, e *draftEntry) (*ActionResult, error) {
	if err := e.begin(DraftApplying); err != nil {
		return nil, err
	}
	d := e.snapshot()

	name := EntityName(d.Data)
	if name == "" {
		name = fmt.Sprintf("%s %s", d.Type, shortID(d.ID))
	}
	entityID, err := m.store.ApplyEntity(ctx, d.CampaignID, port.EntityContent{
		DraftID:    d.ID,
		EntityType: string(d.Type),
		Name:       name,
		Data:       entityData(d),
	})
	if err != nil {
		e.state.Store(int32(DraftProposed))
		return nil, fmt.Errorf("failed to apply draft entity: %w", err)
	}

	now := m.now().UTC()
	e.mu.Lock()
	e.draft.UpdatedAt = now
	e.mu.Unlock()
	e.state.Store(int32(DraftAccepted))

	applied := &AppliedEntity{
		EntityID:   entityID,
		DraftID:    d.ID,
		CampaignID: d.CampaignID,
		EntityType: string(d.Type),
		Name:       name,
		AppliedAt:  now,
	}
	final := e.snapshot()
	m.persist(ctx, final)
	m.publish(ctx, final, EventDraftAccepted, applied)
	logger.Info(ctx, "draft accepted", "entity_id", entityID, "entity_type", applied.EntityType)
	return &ActionResult{Draft: final, Applied: applied}, nil
}

func (m *AcceptanceManager) reject(ctx context.Context, e *draftEntry) (*ActionResult, error) {
	if err := e.begin(DraftRejected); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.draft.UpdatedAt = m.now().UTC()
	e.mu.Unlock()

	final := e.snapshot()
	m.persist(ctx, final)
	m.publish(ctx, final, EventDraftRejected, nil)
	return &ActionResult{Draft: final}, nil
}

// modify 替换内容并重新溯源、抽取声明与评估信任，不沿用旧引用
func (m *AcceptanceManager) modify(ctx context.Context, e *draftEntry, newContent string) (*ActionResult, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, fmt.Errorf("%w: modified content is empty", ErrInvalidContent)
	}
	if err := e.begin(DraftApplying); err != nil {
		return nil, err
	}
	d := e.snapshot()

	claims, data, err := ExtractClaims(d.Type, newContent)
	if err != nil {
		e.state.Store(int32(DraftProposed))
		return nil, stageError(ErrClaimExtraction, err)
	}
	grounded, err := m.ground(ctx, newContent, d.CampaignID)
	if err != nil {
		e.state.Store(int32(DraftProposed))
		return nil, stageError(ErrGroundingFailure, err)
	}
	trust := m.trust.Assign(claims, grounded)

	e.mu.Lock()
	e.draft.Content = newContent
	e.draft.Data = data
	setGrounding(&e.draft, newContent, grounded, trust)
	e.draft.Revision++
	e.draft.UpdatedAt = m.now().UTC()
	e.mu.Unlock()
	e.state.Store(int32(DraftProposed))

	final := e.snapshot()
	m.persist(ctx, final)
	m.publish(ctx, final, EventDraftModified, nil)
	return &ActionResult{Draft: final}, nil
}

func (m *AcceptanceManager) ground(ctx context.Context, text, campaignID string) (*grounding.GroundedContent, error) {
	if m.grounder == nil {
		return &grounding.GroundedContent{Text: text, MarkedText: text}, nil
	}
	return m.grounder.Ground(ctx, text, campaignID)
}

func (m *AcceptanceManager) persist(ctx context.Context, d *Draft) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveDraft(ctx, d); err != nil {
		logger.Warn(ctx, "failed to persist draft state", "draft_id", d.ID, "state", d.State.String(), "error", err.Error())
	}
}

func (m *AcceptanceManager) publish(ctx context.Context, d *Draft, typ DraftEventType, applied *AppliedEntity) {
	if m.publisher == nil {
		return
	}
	ev := DraftEvent{
		Type:           typ,
		DraftID:        d.ID,
		CampaignID:     d.CampaignID,
		GenerationType: d.Type,
		OccurredAt:     m.now().UTC(),
	}
	if applied != nil {
		ev.EntityID = applied.EntityID
		ev.EntityName = applied.Name
		ev.Content = d.Content
	}
	if err := m.publisher.PublishDraftEvent(ctx, ev); err != nil {
		logger.Warn(ctx, "failed to publish draft event", "event", string(typ), "error", err.Error())
	}
}

func setGrounding(d *Draft, content string, g *grounding.GroundedContent, trust []TrustAssignment) {
	d.MarkedText = content
	d.Citations = []grounding.Citation{}
	d.UngroundedReferences = []grounding.Reference{}
	d.Confidence = 0
	if g != nil {
		if g.MarkedText != "" {
			d.MarkedText = g.MarkedText
		}
		d.Citations = append(d.Citations, g.Citations...)
		d.UngroundedReferences = append(d.UngroundedReferences, g.UngroundedReferences...)
		d.Confidence = g.Confidence
	}
	d.TrustAssignments = append([]TrustAssignment{}, trust...)
}

func entityData(d *Draft) json.RawMessage {
	if len(d.Data) > 0 {
		return d.Data
	}
	b, _ := json.Marshal(map[string]string{"content": d.Content})
	return b
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDraftNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidContent):
		return "invalid"
	case errors.Is(err, ErrDraftBusy):
		return "busy"
	default:
		return "error"
	}
}

func containsState(states []DraftState, s DraftState) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
