package openai

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"ag2api-go/internal/credential"
	"ag2api-go/internal/models"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ListModels handles GET /v1/models: the static registry merged with
// whatever the antigravity upstream currently advertises.
func (h *Handler) ListModels(c *gin.Context) {
	ids := models.ExposedIDs(h.cfg.DisabledModels)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range h.upstreamAntigravityModels(c) {
		exposed := models.AntigravityPrefix + id
		if _, ok := seen[exposed]; ok {
			continue
		}
		if h.modelDisabled(exposed) {
			continue
		}
		seen[exposed] = struct{}{}
		ids = append(ids, exposed)
	}
	sort.Strings(ids)

	created := time.Now().Unix()
	out := modelList{Object: "list", Data: make([]modelEntry, 0, len(ids))}
	for _, id := range ids {
		out.Data = append(out.Data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "google",
		})
	}
	c.JSON(http.StatusOK, out)
}

// upstreamAntigravityModels asks the antigravity family for its model
// listing. Failures degrade to the static registry only.
func (h *Handler) upstreamAntigravityModels(c *gin.Context) []string {
	if h.lister == nil {
		return nil
	}
	body, apiErr := h.lister.ListModels(c.Request.Context(), credential.FamilyAntigravity)
	if apiErr != nil {
		log.WithField("code", apiErr.Code).Debug("antigravity model listing unavailable")
		return nil
	}
	listed := gjson.GetBytes(body, "models")
	if !listed.Exists() {
		return nil
	}
	var ids []string
	for id := range listed.Map() {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
