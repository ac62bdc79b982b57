package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pipekit/version"
)

// startTime records when the process started for uptime calculation.
var startTime = time.Now()

// Version returns a handler that reports build version information.
func Version(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := version.Get()
		c.JSON(http.StatusOK, gin.H{
			"service":    serviceName,
			"version":    v.Version,
			"git_commit": v.GitCommit,
			"go_version": v.GoVersion,
			"build_date": v.BuildDate,
			"is_release": v.IsRelease,
			"is_dirty":   v.IsDirty,
			"uptime":     time.Since(startTime).String(),
		})
	}
}
