package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/retention"
)

type apiSettings struct {
	RetentionOrdersDays int    `json:"retention_orders_days"`
	RetentionFilesDays  int    `json:"retention_files_days"`
	ServerVersion       string `json:"server_version"`
	ClientRecommend     string `json:"client_recommend"`
}

func (h *Handler) currentSettings() apiSettings {
	return apiSettings{
		RetentionOrdersDays: db.GetMetaInt(h.DB, retention.MetaOrdersDays, retention.DefaultRetentionDays),
		RetentionFilesDays:  db.GetMetaInt(h.DB, retention.MetaFilesDays, retention.DefaultRetentionDays),
		ServerVersion:       db.GetMeta(h.DB, metaServerVersion, defaultServerVersion),
		ClientRecommend:     db.GetMeta(h.DB, metaClientRecommend, defaultServerVersion),
	}
}

// AdminSettingsGet — GET /admin/api/settings
func (h *Handler) AdminSettingsGet(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.currentSettings())
}

// AdminSettingsPut — PUT /admin/api/settings
//
// Fields absent from the body keep their value. Retention 0 disables the
// corresponding purge.
func (h *Handler) AdminSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RetentionOrdersDays *int    `json:"retention_orders_days"`
		RetentionFilesDays  *int    `json:"retention_files_days"`
		ServerVersion       *string `json:"server_version"`
		ClientRecommend     *string `json:"client_recommend"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	type update struct {
		key   string
		value string
	}
	var updates []update
	for _, d := range []struct {
		key string
		v   *int
	}{
		{retention.MetaOrdersDays, req.RetentionOrdersDays},
		{retention.MetaFilesDays, req.RetentionFilesDays},
	} {
		if d.v == nil {
			continue
		}
		if *d.v < 0 {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", d.key+" must be >= 0")
			return
		}
		updates = append(updates, update{d.key, strconv.Itoa(*d.v)})
	}
	for _, s := range []struct {
		key string
		v   *string
	}{
		{metaServerVersion, req.ServerVersion},
		{metaClientRecommend, req.ClientRecommend},
	} {
		if s.v == nil {
			continue
		}
		v := strings.TrimSpace(*s.v)
		if v == "" {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", s.key+" must not be empty")
			return
		}
		updates = append(updates, update{s.key, v})
	}

	for _, u := range updates {
		if err := db.SetMeta(h.DB, u.key, u.value); err != nil {
			slog.Error("set meta", "key", u.key, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "settings not saved")
			return
		}
	}
	if len(updates) > 0 {
		slog.Info("settings updated", "count", len(updates))
	}
	renderJSON(w, http.StatusOK, h.currentSettings())
}
