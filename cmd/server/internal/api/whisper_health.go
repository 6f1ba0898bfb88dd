package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/health"
)

// HandleWhisperHealthCheck 返回转写后端健康状态
// 参数:
//
//	degradationCtrl: 降级控制器实例，模型未加载时为 nil
//	healthChecker: 主后端的健康检查器，模型未加载时为 nil
//
// 响应格式:
//
//	{
//	  "implementation": "go-whisper",
//	  "is_healthy": true,
//	  "is_degraded": false,
//	  "last_check_time": "2025-10-11T02:20:00Z",
//	  "consecutive_fails": 0,
//	  "error_message": ""
//	}
func HandleWhisperHealthCheck(
	degradationCtrl *degradation.DegradationController,
	healthChecker *health.HealthChecker,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if degradationCtrl == nil || healthChecker == nil {
			errorResponse(c, http.StatusServiceUnavailable, "Whisper model not loaded")
			return
		}

		status := healthChecker.GetStatus()
		c.JSON(http.StatusOK, gin.H{
			"implementation":    degradationCtrl.Name(),
			"is_healthy":        status.IsHealthy,
			"is_degraded":       degradationCtrl.IsDegraded(),
			"last_check_time":   status.LastCheckTime,
			"consecutive_fails": status.ConsecutiveFails,
			"error_message":     status.ErrorMessage,
		})
	}
}
