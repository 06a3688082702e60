package handler

import (
	"log/slog"
	"net/http"
)

type apiDevice struct {
	Host          string   `json:"host"`
	MACList       []string `json:"mac_list"`
	IPList        []string `json:"ip_list"`
	LastSeen      string   `json:"last_seen"`
	ClientVersion string   `json:"client_version"`
}

// ClientsByCode — GET /api/v1/clients/by-code
//
// Lists the machines seen reporting under the presented access code,
// newest first. Lets an operator confirm which stations share a code.
func (h *Handler) ClientsByCode(w http.ResponseWriter, r *http.Request) {
	code := h.clientCode(w, codeParam(r))
	if code == nil {
		return
	}

	devices, err := h.Ledger.Devices(code.ID)
	if err != nil {
		slog.Error("list devices", "code_id", code.ID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "device list failed")
		return
	}

	out := make([]apiDevice, len(devices))
	for i, d := range devices {
		macs := d.MACList
		if macs == nil {
			macs = []string{}
		}
		ips := d.IPList
		if ips == nil {
			ips = []string{}
		}
		out[i] = apiDevice{
			Host:          d.Host,
			MACList:       macs,
			IPList:        ips,
			LastSeen:      timeString(d.LastSeen),
			ClientVersion: d.ClientVersion,
		}
	}
	renderJSON(w, http.StatusOK, map[string][]apiDevice{"devices": out})
}
