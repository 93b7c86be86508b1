package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"flowmon/internal/config"
	"flowmon/internal/ingest"
	"flowmon/pkg/models"
)

type Handler struct {
	cfg      *config.Config
	store    Store
	resolver Resolver
	notifier Notifier
	log      *logrus.Logger
}

func NewHandler(cfg *config.Config, store Store, resolver Resolver, notifier Notifier, log *logrus.Logger) *Handler {
	return &Handler{cfg: cfg, store: store, resolver: resolver, notifier: notifier, log: log}
}

func (h *Handler) registerRoutes(r *mux.Router) {
	r.HandleFunc("/flow", h.GetFlows).Methods(http.MethodGet)
	r.HandleFunc("/flow/uuid/{uuid}", h.GetFlowByUUID).Methods(http.MethodGet)
	r.HandleFunc("/flow/ip/{ip}", h.GetFlowsByIP).Methods(http.MethodGet)
	r.HandleFunc("/flow/ipCount", h.GetIPCounts).Methods(http.MethodGet)
	r.HandleFunc("/flow/protocolCount", h.GetProtocolCounts).Methods(http.MethodGet)
	r.HandleFunc("/flow/day/{x}", h.GetFlowsSince).Methods(http.MethodGet)
	r.HandleFunc("/flow/perHourCount", h.GetHourlyHistogram).Methods(http.MethodGet)
	r.HandleFunc("/flow/goodMalCount", h.GetGoodMalCount).Methods(http.MethodGet)
	r.HandleFunc("/flow/locationGraph", h.GetLocationGraph).Methods(http.MethodGet)
	r.HandleFunc("/flow/topTalkers", h.GetTopTalkers).Methods(http.MethodGet)

	r.HandleFunc("/alert", h.GetAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alert/status/notDeal", h.GetUnhandledAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alert/deal/{uuid}", h.DealAlert).Methods(http.MethodPost)

	r.HandleFunc("/day/{x}/ip/{ip}", h.GetDayFlowsByIP).Methods(http.MethodGet)
	r.HandleFunc("/day/{x}/goodMalCount", h.GetDayGoodMalCount).Methods(http.MethodGet)
	r.HandleFunc("/day/{x}/ipCount", h.GetDayIPCounts).Methods(http.MethodGet)
	r.HandleFunc("/day/{x}/hostAllCount", h.GetDayHostAllCount).Methods(http.MethodGet)
	r.HandleFunc("/day/{x}/hostMalCount", h.GetDayHostMalCount).Methods(http.MethodGet)

	r.HandleFunc("/host", h.GetHosts).Methods(http.MethodGet)
	r.HandleFunc("/host/ip/{ip}", h.GetHostByIP).Methods(http.MethodGet)
	r.HandleFunc("/host/name/{ip}", h.GetHostName).Methods(http.MethodGet)
	r.HandleFunc("/host/status", h.GetHostStatus).Methods(http.MethodGet)
	r.HandleFunc("/host/buildingList", h.GetBuildings).Methods(http.MethodGet)
	r.HandleFunc("/host/building/{building}", h.GetHostsByBuilding).Methods(http.MethodGet)
	r.HandleFunc("/host/alertflowcount", h.GetAttackSummary).Methods(http.MethodGet)
	r.HandleFunc("/host/newDevice", h.PostNewDevice).Methods(http.MethodPost)
	r.HandleFunc("/host/history", h.PostHistorySearch).Methods(http.MethodPost)
	r.HandleFunc("/host/status", h.PutHostStatus).Methods(http.MethodPut)

	r.HandleFunc("/labelList", h.GetLabels).Methods(http.MethodGet)
	r.HandleFunc("/labelList/id/{id}", h.GetLabelByID).Methods(http.MethodGet)
	r.HandleFunc("/protocolList", h.GetProtocols).Methods(http.MethodGet)

	r.HandleFunc("/traffic/hourSum", h.GetTrafficHourSum).Methods(http.MethodGet)
	r.HandleFunc("/traffic/report", h.PostTrafficReport).Methods(http.MethodPost)

	r.HandleFunc("/notify/alert", h.PostNotifyAlert).Methods(http.MethodPost)
	r.HandleFunc("/notify/newDevice", h.PostNotifyNewDevice).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeList never emits null for an empty collection.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError hides query internals behind a generic message.
func (h *Handler) storeError(w http.ResponseWriter, err error, op string) {
	h.log.WithError(err).Error(op)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseDays(r *http.Request) (int, bool) {
	days, err := strconv.Atoi(mux.Vars(r)["x"])
	if err != nil || days < 1 {
		return 0, false
	}
	return days, true
}

func (h *Handler) GetFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.store.AllFlows(r.Context())
	if err != nil {
		h.storeError(w, err, "list flows")
		return
	}
	writeList(w, flows)
}

func (h *Handler) GetFlowByUUID(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]
	flow, err := h.store.FlowByUUID(r.Context(), uuid)
	if err != nil {
		h.storeError(w, err, "flow by uuid")
		return
	}
	if flow == nil {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (h *Handler) GetFlowsByIP(w http.ResponseWriter, r *http.Request) {
	ip := ingest.NormalizeIP(mux.Vars(r)["ip"])
	flows, err := h.store.FlowsByIP(r.Context(), ip)
	if err != nil {
		h.storeError(w, err, "flows by ip")
		return
	}
	writeList(w, flows)
}

func (h *Handler) GetFlowsSince(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day count must be a positive integer")
		return
	}
	flows, err := h.store.FlowsSince(r.Context(), days)
	if err != nil {
		h.storeError(w, err, "flows since")
		return
	}
	writeList(w, flows)
}

func (h *Handler) GetIPCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.IPCounts(r.Context())
	if err != nil {
		h.storeError(w, err, "ip counts")
		return
	}
	writeList(w, counts)
}

func (h *Handler) GetProtocolCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.ProtocolCounts(r.Context())
	if err != nil {
		h.storeError(w, err, "protocol counts")
		return
	}
	writeList(w, counts)
}

func (h *Handler) GetHourlyHistogram(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.store.HourlyHistogram(r.Context())
	if err != nil {
		h.storeError(w, err, "hourly histogram")
		return
	}
	writeList(w, buckets)
}

func (h *Handler) GetGoodMalCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.GoodMalCount(r.Context())
	if err != nil {
		h.storeError(w, err, "good/mal count")
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (h *Handler) GetLocationGraph(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		writeError(w, http.StatusBadRequest, "location parameter required")
		return
	}
	buckets, err := h.store.LocationGraph(r.Context(), location)
	if err != nil {
		h.storeError(w, err, "location graph")
		return
	}
	writeList(w, buckets)
}

func (h *Handler) GetTopTalkers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.TopTalkers(r.Context(), h.cfg.Aggregates.TopTalkerLookback, h.cfg.Aggregates.TopTalkerLimit)
	if err != nil {
		h.storeError(w, err, "top talkers")
		return
	}
	talkers := make([]models.TopTalker, 0, len(rows))
	for _, row := range rows {
		id := h.resolver.Resolve(row.IP, row.HostName)
		talkers = append(talkers, models.TopTalker{
			HostName:  id.HostName,
			Frequency: row.Frequency,
			IP:        id.IP,
			Country:   id.Country,
			ASName:    id.ASName,
		})
	}
	writeList(w, talkers)
}

func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.AllAlerts(r.Context())
	if err != nil {
		h.storeError(w, err, "list alerts")
		return
	}
	writeList(w, alerts)
}

func (h *Handler) GetUnhandledAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.UnhandledAlerts(r.Context())
	if err != nil {
		h.storeError(w, err, "unhandled alerts")
		return
	}
	writeList(w, alerts)
}

func (h *Handler) DealAlert(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]
	found, err := h.store.MarkAlertHandled(r.Context(), uuid)
	if err != nil {
		h.storeError(w, err, "mark alert handled")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "handled"})
}

func (h *Handler) GetDayFlowsByIP(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day count must be a positive integer")
		return
	}
	ip := ingest.NormalizeIP(mux.Vars(r)["ip"])
	flows, err := h.store.FlowsSinceByIP(r.Context(), days, ip)
	if err != nil {
		h.storeError(w, err, "windowed flows by ip")
		return
	}
	writeList(w, flows)
}

func (h *Handler) GetDayGoodMalCount(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day count must be a positive integer")
		return
	}
	count, err := h.store.GoodMalCountSince(r.Context(), days)
	if err != nil {
		h.storeError(w, err, "windowed good/mal count")
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (h *Handler) GetDayIPCounts(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day count must be a positive integer")
		return
	}
	counts, err := h.store.IPCountsSince(r.Context(), days)
	if err != nil {
		h.storeError(w, err, "windowed ip counts")
		return
	}
	writeList(w, counts)
}

func (h *Handler) GetDayHostAllCount(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day count must be a positive integer")
		return
	}
	counts, err := h.store.HostFlowCounts(r.Context(), days)
	if err != nil {
		h.storeError(w, err, "host flow counts")
		return
	}
	writeList(w, counts)
}

func (h *Handler) GetDayHostMalCount(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day count must be a positive integer")
		return
	}
	counts, err := h.store.HostMalCounts(r.Context(), days)
	if err != nil {
		h.storeError(w, err, "host malicious counts")
		return
	}
	writeList(w, counts)
}

func (h *Handler) GetLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.store.Labels(r.Context())
	if err != nil {
		h.storeError(w, err, "list labels")
		return
	}
	writeList(w, labels)
}

func (h *Handler) GetLabelByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "label id must be an integer")
		return
	}
	name, err := h.store.LabelNameByID(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "label by id")
		return
	}
	if name == "" {
		writeError(w, http.StatusNotFound, "label not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *Handler) GetProtocols(w http.ResponseWriter, r *http.Request) {
	protocols, err := h.store.Protocols(r.Context())
	if err != nil {
		h.storeError(w, err, "list protocols")
		return
	}
	writeList(w, protocols)
}

func (h *Handler) GetTrafficHourSum(w http.ResponseWriter, r *http.Request) {
	sum, err := h.store.TrafficHourSum(r.Context())
	if err != nil {
		h.storeError(w, err, "traffic hour sum")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) PostTrafficReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bytes           int64 `json:"bytes"`
		IntervalSeconds int   `json:"interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bytes < 0 || req.IntervalSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "bytes must be non-negative and interval_seconds positive")
		return
	}
	if err := h.store.InsertTrafficSample(r.Context(), req.Bytes, req.IntervalSeconds); err != nil {
		h.storeError(w, err, "insert traffic sample")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handler) PostNotifyAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	sent := h.notifier.Send(r.Context(), req.Title, req.Body)
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (h *Handler) PostNotifyNewDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceName string `json:"deviceName"`
		Token      string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceName == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "deviceName and token required")
		return
	}
	if err := h.store.RegisterDevice(r.Context(), req.DeviceName, req.Token); err != nil {
		h.storeError(w, err, "register device")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}
