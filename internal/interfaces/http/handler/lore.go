package handler

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/interfaces/http/dto"
)

// LoreHandler 设定检索处理器
type LoreHandler struct {
	lore LoreSearcher
}

// NewLoreHandler 创建设定检索处理器
func NewLoreHandler(lore LoreSearcher) *LoreHandler {
	return &LoreHandler{lore: lore}
}

func bindLoreQuery(c *gin.Context) (*dto.LoreQuery, bool) {
	var q dto.LoreQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return nil, false
	}
	return &q, true
}

// SearchLore 检索设定片段
// @Summary 设定检索
// @Description 先检索设定书与冒险模组，再以一半额度检索规则书中的设定信息；无结果时返回空列表
// @Tags Lore
// @Produce json
// @Param q query string true "检索词"
// @Param setting query string false "世界观"
// @Param game_system query string false "规则体系"
// @Param source query string false "来源名称"
// @Param category query string false "内容分类"
// @Param limit query int false "条数" default(5)
// @Success 200 {object} dto.Response[dto.LoreResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/lore [get]
func (h *LoreHandler) SearchLore(c *gin.Context) {
	q, ok := bindLoreQuery(c)
	if !ok {
		return
	}
	if strings.TrimSpace(q.Query) == "" {
		dto.BadRequest(c, "query parameter q is required")
		return
	}

	results, err := h.lore.SearchSettingLore(c.Request.Context(), q.Query, q.Filters(), q.NormalizedLimit())
	if err != nil && !stderrors.Is(err, grounding.ErrNoLoreResults) {
		respondError(c, "search lore", err)
		return
	}
	dto.Success(c, dto.ToLoreResponse(results))
}

// SearchNames 检索设定中的专有名称
// @Summary 名称检索
// @Tags Lore
// @Produce json
// @Param type query string false "名称类别：person, place, organization, item, creature, event, other" default(person)
// @Param setting query string false "世界观"
// @Param limit query int false "条数" default(5)
// @Success 200 {object} dto.Response[dto.NameListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/lore/names [get]
func (h *LoreHandler) SearchNames(c *gin.Context) {
	q, ok := bindLoreQuery(c)
	if !ok {
		return
	}
	nameType, err := dto.ParseNameType(q.Type)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	names, err := h.lore.SearchNames(c.Request.Context(), nameType, q.Filters(), q.NormalizedLimit())
	if err != nil {
		respondError(c, "search names", err)
		return
	}
	dto.Success(c, dto.ToNameListResponse(names))
}

// SearchLocations 检索地点
// @Summary 地点检索
// @Tags Lore
// @Produce json
// @Param q query string false "检索词"
// @Param setting query string false "世界观"
// @Param limit query int false "条数" default(5)
// @Success 200 {object} dto.Response[dto.LocationListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/lore/locations [get]
func (h *LoreHandler) SearchLocations(c *gin.Context) {
	q, ok := bindLoreQuery(c)
	if !ok {
		return
	}

	locations, err := h.lore.SearchLocations(c.Request.Context(), q.Query, q.Filters(), q.NormalizedLimit())
	if err != nil {
		respondError(c, "search locations", err)
		return
	}
	dto.Success(c, dto.ToLocationListResponse(locations))
}
