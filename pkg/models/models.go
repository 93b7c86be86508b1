package models

import "time"

// FlowRecord is one enriched flow row as returned by the read queries:
// the raw flow joined to its optional alert annotation plus the label and
// protocol catalogs. Label is "Good" when no alert exists for the flow.
type FlowRecord struct {
	UUID      string    `json:"uuid"`
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	SrcPort   int       `json:"src_port"`
	DstIP     string    `json:"dst_ip"`
	DstPort   int       `json:"dst_port"`
	Protocol  string    `json:"protocol"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Status    int       `json:"status"`
}

// AlertRecord is a flow that carries an alert annotation, joined to the
// host registry so dashboards can show the affected device. Each alert
// yields exactly one row; when both endpoints are known hosts the
// source-side host is the one displayed.
type AlertRecord struct {
	UUID      string    `json:"uuid"`
	HostName  string    `json:"hostname"`
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	SrcPort   int       `json:"src_port"`
	DstIP     string    `json:"dst_ip"`
	DstPort   int       `json:"dst_port"`
	Protocol  string    `json:"protocol"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Status    int       `json:"status"`
}

// Host is a registered device.
type Host struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	IP         string `json:"ip"`
	Gateway    string `json:"gateway"`
	MACAddr    int64  `json:"mac_addr"`
	Status     int    `json:"status"`
	Department string `json:"department"`
	Importance int    `json:"importance"`
}

// Label is one attack-type catalog entry.
type Label struct {
	ID   int    `json:"label_id"`
	Name string `json:"name"`
}

// Protocol is one protocol catalog entry.
type Protocol struct {
	Code int    `json:"protocol"`
	Name string `json:"name"`
}

// IPCount is the symmetric occurrence count of one address: a flow
// between A and B contributes one count to each side.
type IPCount struct {
	IP    string `json:"ip"`
	Count int64  `json:"count"`
}

// ProtocolCount is the number of flows seen for one protocol.
type ProtocolCount struct {
	Protocol string `json:"protocol"`
	Count    int64  `json:"count"`
}

// GoodMalCount is the benign/malicious split of a set of flows.
type GoodMalCount struct {
	GoodFlowCount int64 `json:"goodFlowCount"`
	BadFlowCount  int64 `json:"badFlowCount"`
}

// HostFlowCount is the windowed flow count attributed to one known host.
// Hosts with no traffic in the window report zero.
type HostFlowCount struct {
	HostName string `json:"hostName"`
	IP       string `json:"ip"`
	Gateway  string `json:"gateway"`
	Count    int64  `json:"count"`
}

// HourBucket is one slot of the rolling 24-hour histogram.
type HourBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Hour        int       `json:"hour"`
	Count       int64     `json:"count"`
}

// LocationBucket is one 30-second slot of the rolling one-hour location
// graph. Traffic is summed from agent byte reports, independent of flows.
type LocationBucket struct {
	IntervalStart time.Time `json:"interval_start"`
	LocationGood  int64     `json:"location_good"`
	LocationMal   int64     `json:"location_mal"`
	AllGood       int64     `json:"all_good"`
	AllMal        int64     `json:"all_mal"`
	AllTraffic    int64     `json:"all_traffic"`
}

// AttackSummary is the per-host, per-label attack count for one location
// within the summary window.
type AttackSummary struct {
	Name            string `json:"name"`
	Location        string `json:"location"`
	IP              string `json:"ip"`
	Importance      int    `json:"importance"`
	AttackLabel     int    `json:"attack_label"`
	AttackLabelName string `json:"attack_label_name"`
	AttackCount     int64  `json:"attack_count"`
}

// LocationStatus is the per-location rollup of host status tiers.
type LocationStatus struct {
	Location string `json:"location"`
	Normal   int64  `json:"normal"`
	Warn     int64  `json:"warn"`
	Alert    int64  `json:"alert"`
}

// HistoryRow is one result of the history search: a flow attributed to a
// selected host, with localized status and the score rendered as text.
type HistoryRow struct {
	HostName  string    `json:"hostName"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	Protocol  string    `json:"protocol"`
	Label     string    `json:"label"`
	Status    string    `json:"status"`
	Score     string    `json:"score"`
}

// TopTalker is one entry of the top-IP view after identity resolution.
type TopTalker struct {
	HostName  string `json:"hostname"`
	Frequency int64  `json:"total_frequency"`
	IP        string `json:"ip"`
	Country   string `json:"country"`
	ASName    string `json:"as_name"`
}

// TrafficSum is the aggregate byte throughput over a lookback window.
type TrafficSum struct {
	TotalTraffic int64 `json:"total_traffic"`
}

// NotificationTarget is one registered push token.
type NotificationTarget struct {
	DeviceName string `json:"deviceName"`
	Token      string `json:"token"`
}

// IngestRecord is what the classifier pipeline publishes for every
// captured flow. Label and Score are present only for malicious flows.
type IngestRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	SrcPort   int       `json:"src_port"`
	DstIP     string    `json:"dst_ip"`
	DstPort   int       `json:"dst_port"`
	Protocol  int       `json:"protocol"`
	Label     *int      `json:"label,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Pcap      []byte    `json:"pcap,omitempty"`
}
