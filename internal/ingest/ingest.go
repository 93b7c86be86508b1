// Package ingest consumes classified flow records from the capture
// pipeline and lands them in the store. Each record becomes one flow
// row, plus an alert row when the classifier assigned a label.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flowmon/internal/notify"
	"flowmon/pkg/models"
)

// Store is the subset of the database surface the consumer needs.
type Store interface {
	InsertFlow(ctx context.Context, flow models.FlowRecord, protocol int, alert *models.IngestRecord) (int64, error)
	LabelNameByID(ctx context.Context, id int) (string, error)
	ProtocolNameByID(ctx context.Context, code int) (string, error)
	HostNameByIP(ctx context.Context, ip string) (string, error)
}

// Feed receives every stored flow for live distribution.
type Feed interface {
	Publish(flow models.FlowRecord)
}

// Notifier pushes an alert message to registered devices.
type Notifier interface {
	Send(ctx context.Context, title, body string) bool
}

// Decode parses one pipeline message. Flows without src and dst
// addresses are rejected; a label without a score is still accepted
// because older classifiers omit the field.
func Decode(raw []byte) (models.IngestRecord, error) {
	var rec models.IngestRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode flow record: %w", err)
	}
	if rec.SrcIP == "" || rec.DstIP == "" {
		return rec, fmt.Errorf("flow record missing endpoint address")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.SrcIP = NormalizeIP(rec.SrcIP)
	rec.DstIP = NormalizeIP(rec.DstIP)
	return rec, nil
}

// NormalizeIP stores plain IPv4 addresses in their IPv4-mapped IPv6
// form so every address column holds one canonical textual shape.
// Anything unparseable passes through untouched.
func NormalizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	if addr.Is4() {
		return "::ffff:" + addr.String()
	}
	return addr.String()
}

// Consumer turns decoded records into stored flows and side effects.
type Consumer struct {
	store    Store
	feed     Feed
	notifier Notifier
	log      *logrus.Logger
}

func NewConsumer(store Store, feed Feed, notifier Notifier, log *logrus.Logger) *Consumer {
	return &Consumer{store: store, feed: feed, notifier: notifier, log: log}
}

// Handle stores one record. The flow and its alert land in a single
// transaction; notification and live-feed fan-out happen only after
// the write commits and never fail the ingest.
func (c *Consumer) Handle(ctx context.Context, rec models.IngestRecord) error {
	flow := models.FlowRecord{
		UUID:      uuid.NewString(),
		Timestamp: rec.Timestamp.UTC(),
		SrcIP:     rec.SrcIP,
		SrcPort:   rec.SrcPort,
		DstIP:     rec.DstIP,
		DstPort:   rec.DstPort,
	}

	var alert *models.IngestRecord
	if rec.Label != nil {
		alert = &rec
	}

	if _, err := c.store.InsertFlow(ctx, flow, rec.Protocol, alert); err != nil {
		return err
	}

	// The feed carries the same enriched shape as the REST reads, so
	// catalog codes are resolved to their names before publishing.
	protoName, err := c.store.ProtocolNameByID(ctx, rec.Protocol)
	if err != nil {
		c.log.WithError(err).Warn("resolve flow protocol")
	}
	flow.Protocol = protoName

	flow.Label = "Good"
	if rec.Label != nil {
		flow.Score = rec.Score
		name, err := c.store.LabelNameByID(ctx, *rec.Label)
		if err != nil {
			c.log.WithError(err).Warn("resolve alert label")
		}
		if name == "" {
			name = "Unknown"
		}
		flow.Label = name
		c.pushAlert(ctx, flow)
	}

	if c.feed != nil {
		c.feed.Publish(flow)
	}
	return nil
}

func (c *Consumer) pushAlert(ctx context.Context, flow models.FlowRecord) {
	if c.notifier == nil {
		return
	}
	hostName, err := c.store.HostNameByIP(ctx, flow.DstIP)
	if err != nil {
		c.log.WithError(err).Warn("resolve alert target host")
	}
	if hostName == "" {
		hostName = "Unknown Host"
	}
	title, body := notify.AlertMessage(flow.Label, hostName, flow.DstIP,
		flow.Timestamp.Format("2006-01-02 15:04:05"), flow.Score)
	c.notifier.Send(ctx, title, body)
}
