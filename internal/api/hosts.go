package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"flowmon/internal/db"
	"flowmon/internal/ingest"
	"flowmon/pkg/models"
)

func (h *Handler) GetHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.store.AllHosts(r.Context())
	if err != nil {
		h.storeError(w, err, "list hosts")
		return
	}
	writeList(w, hosts)
}

func (h *Handler) GetHostByIP(w http.ResponseWriter, r *http.Request) {
	ip := ingest.NormalizeIP(mux.Vars(r)["ip"])
	host, err := h.store.HostByIP(r.Context(), ip)
	if err != nil {
		h.storeError(w, err, "host by ip")
		return
	}
	if host == nil {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (h *Handler) GetHostName(w http.ResponseWriter, r *http.Request) {
	ip := ingest.NormalizeIP(mux.Vars(r)["ip"])
	name, err := h.store.HostNameByIP(r.Context(), ip)
	if err != nil {
		h.storeError(w, err, "host name by ip")
		return
	}
	if name == "" {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *Handler) GetHostStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.store.HostStatusByLocation(r.Context())
	if err != nil {
		h.storeError(w, err, "host status rollup")
		return
	}
	writeList(w, statuses)
}

func (h *Handler) GetBuildings(w http.ResponseWriter, r *http.Request) {
	buildings, err := h.store.Buildings(r.Context())
	if err != nil {
		h.storeError(w, err, "building list")
		return
	}
	writeList(w, buildings)
}

func (h *Handler) GetHostsByBuilding(w http.ResponseWriter, r *http.Request) {
	building := mux.Vars(r)["building"]
	names, err := h.store.HostNamesByBuilding(r.Context(), building)
	if err != nil {
		h.storeError(w, err, "hosts by building")
		return
	}
	writeList(w, names)
}

func (h *Handler) GetAttackSummary(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		writeError(w, http.StatusBadRequest, "location parameter required")
		return
	}
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}
	summary, err := h.store.AttackSummary(r.Context(), location, since, h.cfg.Aggregates.AttackSummaryWindow)
	if err != nil {
		h.storeError(w, err, "attack summary")
		return
	}
	writeList(w, summary)
}

func (h *Handler) PostNewDevice(w http.ResponseWriter, r *http.Request) {
	var req models.Host
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.IP == "" || req.Location == "" {
		writeError(w, http.StatusBadRequest, "name, ip and location required")
		return
	}
	req.IP = ingest.NormalizeIP(req.IP)
	id, err := h.store.InsertHost(r.Context(), req)
	if err != nil {
		h.storeError(w, err, "insert host")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) PutHostStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP     string `json:"ip"`
		Status *int   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IP == "" || req.Status == nil {
		writeError(w, http.StatusBadRequest, "ip and status required")
		return
	}
	if *req.Status < db.HostStatusNormal || *req.Status > db.HostStatusAlert {
		writeError(w, http.StatusBadRequest, "status out of range")
		return
	}
	found, err := h.store.SetHostStatus(r.Context(), ingest.NormalizeIP(req.IP), *req.Status)
	if err != nil {
		h.storeError(w, err, "set host status")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// historyRequest is the raw history-search body. Pointer slices
// distinguish a missing array from an empty one: both host and label
// must be present, but either may legitimately be empty.
type historyRequest struct {
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
	Building  string           `json:"building"`
	Host      *[]string        `json:"host"`
	Label     *json.RawMessage `json:"label"`
}

func (h *Handler) PostHistorySearch(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	filter, err := buildHistoryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.store.SearchHistory(r.Context(), filter)
	if err != nil {
		h.storeError(w, err, "history search")
		return
	}
	writeList(w, rows)
}

func buildHistoryFilter(req historyRequest) (db.HistoryFilter, error) {
	var f db.HistoryFilter
	if req.StartTime == "" || req.EndTime == "" {
		return f, fmt.Errorf("start_time and end_time required")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return f, fmt.Errorf("start_time must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return f, fmt.Errorf("end_time must be RFC3339")
	}
	if end.Before(start) {
		return f, fmt.Errorf("end_time precedes start_time")
	}
	if req.Building == "" {
		return f, fmt.Errorf("building required")
	}
	if req.Host == nil {
		return f, fmt.Errorf("host list required")
	}
	if req.Label == nil {
		return f, fmt.Errorf("label list required")
	}

	labelIDs, includeGood, err := partitionLabels(*req.Label)
	if err != nil {
		return f, err
	}

	return db.HistoryFilter{
		Start:       start,
		End:         end,
		Building:    req.Building,
		Hosts:       *req.Host,
		LabelIDs:    labelIDs,
		IncludeGood: includeGood,
	}, nil
}

// partitionLabels splits the requested label list into numeric ids and
// the "Good" pseudo-label. Clients send ids as numbers or strings; the
// pseudo-label is never a numeric id.
func partitionLabels(raw json.RawMessage) ([]int32, bool, error) {
	var entries []any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("label must be an array")
	}
	ids := make([]int32, 0, len(entries))
	includeGood := false
	for _, e := range entries {
		switch v := e.(type) {
		case float64:
			ids = append(ids, int32(v))
		case string:
			if v == "Good" {
				includeGood = true
				continue
			}
			id, err := strconv.Atoi(v)
			if err != nil {
				return nil, false, fmt.Errorf("label %q is neither an id nor \"Good\"", v)
			}
			ids = append(ids, int32(id))
		default:
			return nil, false, fmt.Errorf("label entries must be ids or \"Good\"")
		}
	}
	return ids, includeGood, nil
}
