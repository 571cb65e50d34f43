package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/application/quota"
	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/workflow/port"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	resp *generation.Response
	err  error
	got  *generation.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req *generation.Request) (*generation.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeQuota struct {
	used, max int64
	err       error
}

func (f fakeQuota) CheckDailyTokens(context.Context, string) (int64, int64, error) {
	return f.used, f.max, f.err
}

type fakeDrafts struct {
	drafts   map[string]*generation.Draft
	applyErr error
	listErr  error
	actions  []generation.DraftAction
}

func (f *fakeDrafts) Get(_ context.Context, id string) (*generation.Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, generation.ErrDraftNotFound
	}
	return d, nil
}

func (f *fakeDrafts) List(_ context.Context, campaignID string, states ...generation.DraftState) ([]*generation.Draft, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*generation.Draft, 0)
	for _, id := range []string{"d1", "d2", "d3"} {
		d, ok := f.drafts[id]
		if !ok || d.CampaignID != campaignID {
			continue
		}
		if len(states) > 0 && d.State != states[0] {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDrafts) Apply(_ context.Context, id string, action generation.DraftAction) (*generation.ActionResult, error) {
	f.actions = append(f.actions, action)
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	d, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	res := &generation.ActionResult{Draft: d}
	if action.Kind == generation.ActionAccept {
		res.Applied = &generation.AppliedEntity{EntityID: "e1", DraftID: id, EntityType: "npc", Name: "Dorran"}
	}
	return res, nil
}

type fakeGrounder struct {
	report *grounding.ValidationReport
	err    error
}

func (f fakeGrounder) Ground(_ context.Context, text, _ string) (*grounding.GroundedContent, error) {
	return &grounding.GroundedContent{Text: text, MarkedText: text}, f.err
}

func (f fakeGrounder) Validate(context.Context, string) (*grounding.ValidationReport, error) {
	return f.report, f.err
}

type fakeCatalog struct {
	templates []*generation.Template
	err       error
}

func (f fakeCatalog) List() []*generation.Template { return f.templates }
func (f fakeCatalog) Reload() error                 { return f.err }
func (f fakeCatalog) Dir() string                   { return "configs/templates" }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func perform(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func generationEngine(gen Generator, q QuotaChecker) *gin.Engine {
	r := gin.New()
	r.POST("/v1/campaigns/:cid/generations", NewGenerationHandler(gen, q).Generate)
	return r
}

func validGenerateBody() map[string]any {
	return map[string]any{
		"generation_type":   "npc",
		"free_text_context": "A blacksmith for the dwarven hold",
		"requested_by":      "gm-1",
	}
}

func TestGenerationHandler_Created(t *testing.T) {
	gen := &fakeGenerator{resp: &generation.Response{DraftID: "d1", Type: generation.TypeNPC, Confidence: 0.72}}
	w, env := perform(t, generationEngine(gen, nil), http.MethodPost, "/v1/campaigns/c1/generations", validGenerateBody())

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "d1", data["draft_id"])
	assert.Equal(t, []any{}, data["citations"])

	require.NotNil(t, gen.got)
	assert.Equal(t, "c1", gen.got.CampaignID)
	assert.Equal(t, generation.TypeNPC, gen.got.Type)
}

func TestGenerationHandler_BadBody(t *testing.T) {
	body := validGenerateBody()
	body["generation_type"] = "dragon"
	w, _ := perform(t, generationEngine(&fakeGenerator{}, nil), http.MethodPost, "/v1/campaigns/c1/generations", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerationHandler_QuotaExceeded(t *testing.T) {
	gen := &fakeGenerator{}
	q := fakeQuota{used: 1200, max: 1000, err: quota.TokenQuotaExceededError{CampaignID: "c1", Max: 1000, Used: 1200}}
	w, env := perform(t, generationEngine(gen, q), http.MethodPost, "/v1/campaigns/c1/generations", validGenerateBody())

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1200", w.Header().Get("X-Token-Quota-Used"))
	assert.Equal(t, "1000", w.Header().Get("X-Token-Quota-Limit"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "4010", env.Error.ErrorCode)
	assert.Nil(t, gen.got)
}

func TestGenerationHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"campaign missing", &generation.Error{Stage: generation.ErrContextFailure, Err: fmt.Errorf("failed to load snapshot: %w", port.ErrCampaignNotFound)}, http.StatusNotFound, "3001"},
		{"budget too small", &generation.Error{Stage: generation.ErrContextFailure, Err: generation.ErrBudgetTooSmall}, http.StatusBadRequest, "4002"},
		{"no template", &generation.Error{Stage: generation.ErrNoTemplate, Err: generation.ErrTemplateNotFound}, http.StatusNotFound, "3003"},
		{"invalid request", &generation.Error{Stage: generation.ErrInvalidRequest}, http.StatusBadRequest, "1001"},
		{"llm failure", &generation.Error{Stage: generation.ErrLLMFailure, Err: errors.New("upstream 503")}, http.StatusBadGateway, "4005"},
		{"claim extraction", &generation.Error{Stage: generation.ErrClaimExtraction}, http.StatusInternalServerError, "4006"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "1007"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := perform(t, generationEngine(&fakeGenerator{err: tt.err}, nil), http.MethodPost, "/v1/campaigns/c1/generations", validGenerateBody())
			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.ErrorCode)
			if tt.status >= 500 {
				assert.Empty(t, env.Error.Details)
			}
		})
	}
}

func draftEngine(d DraftService) *gin.Engine {
	h := NewDraftHandler(d)
	r := gin.New()
	r.GET("/v1/drafts/:id", h.GetDraft)
	r.GET("/v1/campaigns/:cid/drafts", h.ListDrafts)
	r.POST("/v1/drafts/:id/accept", h.AcceptDraft)
	r.POST("/v1/drafts/:id/reject", h.RejectDraft)
	r.POST("/v1/drafts/:id/modify", h.ModifyDraft)
	return r
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: map[string]*generation.Draft{
		"d1": {ID: "d1", CampaignID: "c1", Type: generation.TypeNPC, State: generation.DraftProposed, Revision: 1},
		"d2": {ID: "d2", CampaignID: "c1", Type: generation.TypeNPC, State: generation.DraftRejected, Revision: 1},
		"d3": {ID: "d3", CampaignID: "c2", Type: generation.TypeArc, State: generation.DraftProposed, Revision: 1},
	}}
}

func TestDraftHandler_Get(t *testing.T) {
	r := draftEngine(newFakeDrafts())

	w, env := perform(t, r, http.MethodGet, "/v1/drafts/d1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "proposed", data["state"])

	w, env = perform(t, r, http.MethodGet, "/v1/drafts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "3002", env.Error.ErrorCode)
}

func TestDraftHandler_List(t *testing.T) {
	r := draftEngine(newFakeDrafts())

	w, env := perform(t, r, http.MethodGet, "/v1/campaigns/c1/drafts?state=proposed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Drafts []struct {
			DraftID string `json:"draft_id"`
		} `json:"drafts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Drafts, 1)
	assert.Equal(t, "d1", data.Drafts[0].DraftID)
	assert.Equal(t, 1, env.Meta.Total)

	w, env = perform(t, r, http.MethodGet, "/v1/campaigns/c1/drafts?page=2&page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Drafts, 1)
	assert.Equal(t, "d2", data.Drafts[0].DraftID)
	assert.Equal(t, 2, env.Meta.Total)

	w, _ = perform(t, r, http.MethodGet, "/v1/campaigns/c1/drafts?state=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	failing := newFakeDrafts()
	failing.listErr = errors.New("connection refused")
	w, env = perform(t, draftEngine(failing), http.MethodGet, "/v1/campaigns/c1/drafts", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, env.Error.Details)
}

func TestDraftHandler_Actions(t *testing.T) {
	drafts := newFakeDrafts()
	r := draftEngine(drafts)

	w, env := perform(t, r, http.MethodPost, "/v1/drafts/d1/accept", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	applied, ok := data["applied_entity"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "e1", applied["entity_id"])

	w, _ = perform(t, r, http.MethodPost, "/v1/drafts/d1/modify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, r, http.MethodPost, "/v1/drafts/d1/modify", map[string]string{"content": `{"name":"Other"}`})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, drafts.actions, 2)
	assert.Equal(t, generation.ActionModify, drafts.actions[1].Kind)
	assert.Equal(t, `{"name":"Other"}`, drafts.actions[1].NewContent)
}

func TestDraftHandler_EmptyModifyIsBadRequest(t *testing.T) {
	drafts := newFakeDrafts()
	drafts.applyErr = fmt.Errorf("%w: modified content is empty", generation.ErrInvalidContent)
	w, env := perform(t, draftEngine(drafts), http.MethodPost, "/v1/drafts/d1/modify", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "1001", env.Error.ErrorCode)
	assert.Contains(t, env.Error.Details, "modified content is empty")
}

func TestDraftHandler_Conflicts(t *testing.T) {
	for _, err := range []error{generation.ErrInvalidTransition, generation.ErrDraftBusy} {
		drafts := newFakeDrafts()
		drafts.applyErr = fmt.Errorf("draft d1: %w", err)
		w, _ := perform(t, draftEngine(drafts), http.MethodPost, "/v1/drafts/d1/reject", nil)
		assert.Equal(t, http.StatusConflict, w.Code, err.Error())
	}
}

func TestGroundingHandler(t *testing.T) {
	report := &grounding.ValidationReport{
		Valid:   []grounding.ValidatedReference{{Reference: grounding.Reference{RawText: "DC 15"}}},
		Invalid: []grounding.InvalidReference{{Reference: grounding.Reference{RawText: "p. 999"}, Reason: "no match"}},
	}
	h := NewGroundingHandler(fakeGrounder{report: report})
	r := gin.New()
	r.POST("/ground", h.Ground)
	r.POST("/validate", h.Validate)

	w, env := perform(t, r, http.MethodPost, "/validate", map[string]string{"text": "A DC 15 check, see p. 999"})
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Total       int     `json:"total"`
		SuccessRate float64 `json:"success_rate"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 2, data.Total)
	assert.InDelta(t, 0.5, data.SuccessRate, 1e-9)

	w, env = perform(t, r, http.MethodPost, "/ground", map[string]string{"text": "plain"})
	require.Equal(t, http.StatusOK, w.Code)
	var grounded map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &grounded))
	assert.Equal(t, "plain", grounded["marked_text"])

	w, _ = perform(t, r, http.MethodPost, "/ground", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateHandler(t *testing.T) {
	maxTokens := 900
	catalog := fakeCatalog{templates: []*generation.Template{{
		ID:        "npc-v1",
		Type:      generation.TypeNPC,
		Variables: []generation.Variable{{Name: "game_system", Required: true}},
		MaxTokens: &maxTokens,
	}}}
	h := NewTemplateHandler(catalog)
	r := gin.New()
	r.GET("/templates", h.ListTemplates)
	r.POST("/templates/reload", h.ReloadTemplates)

	w, env := perform(t, r, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Templates []struct {
			ID                string   `json:"id"`
			RequiredVariables []string `json:"required_variables"`
		} `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Templates, 1)
	assert.Equal(t, []string{"game_system"}, list.Templates[0].RequiredVariables)

	w, _ = perform(t, r, http.MethodPost, "/templates/reload", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	catalog.err = fmt.Errorf("%w: bad yaml", generation.ErrTemplateParse)
	r = gin.New()
	r.POST("/templates/reload", NewTemplateHandler(catalog).ReloadTemplates)
	w, env = perform(t, r, http.MethodPost, "/templates/reload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "4009", env.Error.ErrorCode)
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestHealthHandler_Readiness(t *testing.T) {
	h := NewHealthHandler("1.0.0",
		Dependency{Name: "postgres", Checker: fakeChecker{}, Required: true},
		Dependency{Name: "milvus", Checker: fakeChecker{err: errors.New("timeout")}},
		Dependency{Name: "redis"},
	)
	ready, resp := h.Readiness(context.Background())
	assert.True(t, ready)
	assert.Equal(t, "ok", resp.Checks["postgres"].Status)
	assert.Equal(t, "degraded", resp.Checks["milvus"].Status)
	assert.Equal(t, "disabled", resp.Checks["redis"].Status)

	h = NewHealthHandler("1.0.0", Dependency{Name: "postgres", Checker: fakeChecker{err: errors.New("refused")}, Required: true})
	r := gin.New()
	r.GET("/ready", h.Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type scopeSearcher struct {
	hits map[port.SearchScope][]port.SearchHit
	err  error
	reqs []port.SearchRequest
}

func (s *scopeSearcher) Search(_ context.Context, req port.SearchRequest) ([]port.SearchHit, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[req.Scope], nil
}

func loreEngine(s port.Searcher) *gin.Engine {
	h := NewLoreHandler(grounding.NewFlavourSearcher(s))
	r := gin.New()
	r.GET("/v1/lore", h.SearchLore)
	r.GET("/v1/lore/names", h.SearchNames)
	r.GET("/v1/lore/locations", h.SearchLocations)
	return r
}

func TestLoreHandler_SearchLore(t *testing.T) {
	s := &scopeSearcher{hits: map[port.SearchScope][]port.SearchHit{
		port.ScopeFiction: {{
			ID:         "f1",
			Content:    "Ironhold is an ancient dwarven city.",
			Source:     port.SourceMetadata{SourceID: "gz", SourceName: "Ironhold Gazetteer", SourceType: "flavour"},
			Confidence: 0.9,
		}},
	}}
	w, env := perform(t, loreEngine(s), http.MethodGet, "/v1/lore?q=ironhold&setting=Forgotten%20Realms&limit=50", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Results []struct {
			ID       string             `json:"id"`
			Scope    string             `json:"scope"`
			Citation grounding.Citation `json:"citation"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Results, 1)
	assert.Equal(t, "f1", data.Results[0].ID)
	assert.Equal(t, "fiction", data.Results[0].Scope)
	assert.Equal(t, "Ironhold Gazetteer", data.Results[0].Citation.SourceName)

	require.NotEmpty(t, s.reqs)
	assert.Equal(t, 20, s.reqs[0].Limit)
	assert.Contains(t, s.reqs[0].Filter, `setting == "Forgotten Realms"`)
}

func TestLoreHandler_NoResultsIsEmptyList(t *testing.T) {
	w, env := perform(t, loreEngine(&scopeSearcher{}), http.MethodGet, "/v1/lore?q=nothing", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"results":[]}`, string(env.Data))

	w, _ = perform(t, loreEngine(&scopeSearcher{}), http.MethodGet, "/v1/lore", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, loreEngine(&scopeSearcher{err: errors.New("milvus down")}), http.MethodGet, "/v1/lore?q=ironhold", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLoreHandler_NamesAndLocations(t *testing.T) {
	s := &scopeSearcher{hits: map[port.SearchScope][]port.SearchHit{
		port.ScopeFiction: {{ID: "f1", Content: "Ironhold is an ancient dwarven city.", Source: port.SourceMetadata{SourceName: "Gazetteer"}}},
	}}
	r := loreEngine(s)

	w, env := perform(t, r, http.MethodGet, "/v1/lore/names?type=place", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var names struct {
		Names []struct {
			Name     string `json:"name"`
			NameType string `json:"name_type"`
		} `json:"names"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &names))
	require.Len(t, names.Names, 1)
	assert.Equal(t, "Ironhold", names.Names[0].Name)
	assert.Equal(t, "place", names.Names[0].NameType)

	w, _ = perform(t, r, http.MethodGet, "/v1/lore/names?type=dragon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = perform(t, r, http.MethodGet, "/v1/lore/locations?q=forge&setting=Faerun", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var locations struct {
		Locations []struct {
			Name         string `json:"name"`
			LocationType string `json:"location_type"`
			Setting      string `json:"setting"`
		} `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &locations))
	require.Len(t, locations.Locations, 1)
	assert.Equal(t, "Ironhold", locations.Locations[0].Name)
	assert.Equal(t, "city", locations.Locations[0].LocationType)
	assert.Equal(t, "Faerun", locations.Locations[0].Setting)
}

type fakeCampaignRepo struct {
	repository.CampaignRepository
	known map[string]bool
	err   error
}

func (f fakeCampaignRepo) GetByID(_ context.Context, id string) (*entity.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.known[id] {
		return nil, repository.ErrNotFound
	}
	return &entity.Campaign{ID: id}, nil
}

type fakeSessionRepo struct {
	repository.CampaignSessionRepository
	sessions []*entity.CampaignSession
}

func (f fakeSessionRepo) ListByCampaign(context.Context, string) ([]*entity.CampaignSession, error) {
	return f.sessions, nil
}

type fakeEntityRepo struct {
	repository.CampaignEntityRepository
	items      []*entity.CampaignEntity
	entityType string
	pagination repository.Pagination
}

func (f *fakeEntityRepo) ListByCampaign(_ context.Context, _ string, entityType string, p repository.Pagination) (*repository.PagedResult[*entity.CampaignEntity], error) {
	f.entityType = entityType
	f.pagination = p
	return repository.NewPagedResult(f.items, int64(len(f.items)), p), nil
}

type fakeUsageRepo struct {
	repository.SourceUsageRepository
	usages []*entity.SourceUsage
	err    error
}

func (f fakeUsageRepo) ListByCampaign(context.Context, string) ([]*entity.SourceUsage, error) {
	return f.usages, f.err
}

func TestCampaignHandler_Lists(t *testing.T) {
	entities := &fakeEntityRepo{items: []*entity.CampaignEntity{{
		ID: "e1", DraftID: "d1", EntityType: "npc", Name: "Dorran", Data: []byte(`{"name":"Dorran"}`),
	}}}
	h := NewCampaignHandler(
		fakeCampaignRepo{known: map[string]bool{"c1": true}},
		fakeSessionRepo{sessions: []*entity.CampaignSession{{ID: "s1", Number: 3, Title: "The Forge Falls", Status: entity.SessionActive}}},
		entities,
		fakeUsageRepo{usages: []*entity.SourceUsage{{SourceID: "phb", PassageID: "phb-20"}}},
	)
	r := gin.New()
	r.GET("/v1/campaigns/:cid/entities", h.ListEntities)
	r.GET("/v1/campaigns/:cid/sessions", h.ListSessions)
	r.GET("/v1/campaigns/:cid/source-usage", h.ListSourceUsage)

	w, env := perform(t, r, http.MethodGet, "/v1/campaigns/c1/entities?entity_type=npc&page=2&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Entities []struct {
			EntityID string          `json:"entity_id"`
			Data     json.RawMessage `json:"data"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Entities, 1)
	assert.JSONEq(t, `{"name":"Dorran"}`, string(list.Entities[0].Data))
	assert.Equal(t, "npc", entities.entityType)
	assert.Equal(t, repository.Pagination{Page: 2, PageSize: 5}, entities.pagination)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)

	w, _ = perform(t, r, http.MethodGet, "/v1/campaigns/c1/entities?entity_type=dragon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = perform(t, r, http.MethodGet, "/v1/campaigns/c1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"title":"The Forge Falls"`)
	assert.Contains(t, string(env.Data), `"status":"active"`)

	w, env = perform(t, r, http.MethodGet, "/v1/campaigns/c1/source-usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"passage_id":"phb-20"`)
}

func TestCampaignHandler_Errors(t *testing.T) {
	h := NewCampaignHandler(
		fakeCampaignRepo{known: map[string]bool{"c1": true}},
		fakeSessionRepo{},
		&fakeEntityRepo{},
		fakeUsageRepo{err: errors.New("connection reset")},
	)
	r := gin.New()
	r.GET("/v1/campaigns/:cid/sessions", h.ListSessions)
	r.GET("/v1/campaigns/:cid/source-usage", h.ListSourceUsage)

	w, env := perform(t, r, http.MethodGet, "/v1/campaigns/missing/sessions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "3001", env.Error.ErrorCode)

	w, env = perform(t, r, http.MethodGet, "/v1/campaigns/c1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, string(env.Data))

	w, _ = perform(t, r, http.MethodGet, "/v1/campaigns/c1/source-usage", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
