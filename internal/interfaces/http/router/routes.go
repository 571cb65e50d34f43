package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由；generateLimit 仅作用于生成接口
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers, generateLimit gin.HandlerFunc) {
	campaigns := v1.Group("/campaigns")
	{
		campaigns.POST("/:cid/generations", generateLimit, h.Generation.Generate)
		campaigns.GET("/:cid/drafts", h.Draft.ListDrafts)
		campaigns.GET("/:cid/entities", h.Campaign.ListEntities)
		campaigns.GET("/:cid/sessions", h.Campaign.ListSessions)
		campaigns.GET("/:cid/source-usage", h.Campaign.ListSourceUsage)
	}

	drafts := v1.Group("/drafts")
	{
		drafts.GET("/:id", h.Draft.GetDraft)
		drafts.POST("/:id/accept", h.Draft.AcceptDraft)
		drafts.POST("/:id/reject", h.Draft.RejectDraft)
		drafts.POST("/:id/modify", h.Draft.ModifyDraft)
	}

	grounding := v1.Group("/grounding")
	{
		grounding.POST("/ground", h.Grounding.Ground)
		grounding.POST("/validate", h.Grounding.Validate)
	}

	lore := v1.Group("/lore")
	{
		lore.GET("", h.Lore.SearchLore)
		lore.GET("/names", h.Lore.SearchNames)
		lore.GET("/locations", h.Lore.SearchLocations)
	}

	templates := v1.Group("/templates")
	{
		templates.GET("", h.Template.ListTemplates)
		templates.POST("/reload", h.Template.ReloadTemplates)
	}
}
