package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/config"
)

// ModelsResponse GET /models 响应
type ModelsResponse struct {
	AvailableModels []string `json:"available_models"`
	CurrentModel    string   `json:"current_model"`
	Device          string   `json:"device"`
}

// HandleGetWhisperModels 返回可用模型目录
func HandleGetWhisperModels(catalog config.ModelCatalog) gin.HandlerFunc {
	resp := ModelsResponse{
		AvailableModels: catalog.AvailableModels,
		CurrentModel:    catalog.CurrentModel,
		Device:          catalog.Device,
	}
	if resp.AvailableModels == nil {
		resp.AvailableModels = []string{}
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, resp)
	}
}
