package ingest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmon/pkg/models"
)

func TestNormalizeIP(t *testing.T) {
	cases := map[string]string{
		"192.168.1.5":        "::ffff:192.168.1.5",
		"8.8.8.8":            "::ffff:8.8.8.8",
		"::ffff:192.168.1.5": "::ffff:192.168.1.5",
		"2001:db8::1":        "2001:db8::1",
		"not-an-ip":          "not-an-ip",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeIP(in), in)
	}
}

func TestDecodeBenignFlow(t *testing.T) {
	raw := []byte(`{"timestamp":"2026-08-28T10:00:00Z","src_ip":"192.168.1.5","src_port":51234,"dst_ip":"10.0.0.2","dst_port":443,"protocol":6}`)
	rec, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "::ffff:192.168.1.5", rec.SrcIP)
	assert.Equal(t, "::ffff:10.0.0.2", rec.DstIP)
	assert.Equal(t, 6, rec.Protocol)
	assert.Nil(t, rec.Label)
}

func TestDecodeMaliciousFlow(t *testing.T) {
	raw := []byte(`{"timestamp":"2026-08-28T10:00:00Z","src_ip":"1.2.3.4","src_port":1,"dst_ip":"192.168.1.9","dst_port":80,"protocol":6,"label":3,"score":0.92}`)
	rec, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, rec.Label)
	assert.Equal(t, 3, *rec.Label)
	assert.Equal(t, 0.92, rec.Score)
}

func TestDecodeRejectsMissingEndpoints(t *testing.T) {
	_, err := Decode([]byte(`{"src_port":1,"dst_port":2,"protocol":6}`))
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeFillsMissingTimestamp(t *testing.T) {
	rec, err := Decode([]byte(`{"src_ip":"1.2.3.4","dst_ip":"5.6.7.8","protocol":17}`))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), rec.Timestamp, 5*time.Second)
}

type fakeStore struct {
	flows     []models.FlowRecord
	protocols []int
	alerts    []*models.IngestRecord
	labelName string
	protoName string
	hostName  string
}

func (f *fakeStore) InsertFlow(_ context.Context, flow models.FlowRecord, protocol int, alert *models.IngestRecord) (int64, error) {
	f.flows = append(f.flows, flow)
	f.protocols = append(f.protocols, protocol)
	f.alerts = append(f.alerts, alert)
	return int64(len(f.flows)), nil
}

func (f *fakeStore) LabelNameByID(_ context.Context, _ int) (string, error) {
	return f.labelName, nil
}

func (f *fakeStore) ProtocolNameByID(_ context.Context, _ int) (string, error) {
	return f.protoName, nil
}

func (f *fakeStore) HostNameByIP(_ context.Context, _ string) (string, error) {
	return f.hostName, nil
}

type fakeFeed struct {
	published []models.FlowRecord
}

func (f *fakeFeed) Publish(flow models.FlowRecord) {
	f.published = append(f.published, flow)
}

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) Send(_ context.Context, title, _ string) bool {
	f.titles = append(f.titles, title)
	return true
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHandleBenignFlow(t *testing.T) {
	store := &fakeStore{protoName: "TCP"}
	feed := &fakeFeed{}
	notifier := &fakeNotifier{}
	c := NewConsumer(store, feed, notifier, testLogger())

	rec := models.IngestRecord{
		Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		SrcIP:     "::ffff:192.168.1.5", SrcPort: 51234,
		DstIP: "::ffff:10.0.0.2", DstPort: 443,
		Protocol: 6,
	}
	require.NoError(t, c.Handle(context.Background(), rec))

	require.Len(t, store.flows, 1)
	assert.NotEmpty(t, store.flows[0].UUID)
	assert.Equal(t, 6, store.protocols[0])
	assert.Nil(t, store.alerts[0], "benign flows carry no alert row")

	require.Len(t, feed.published, 1)
	assert.Equal(t, "Good", feed.published[0].Label)
	assert.Equal(t, "TCP", feed.published[0].Protocol, "feed rows carry the catalog name, not the code")
	assert.Empty(t, notifier.titles, "benign flows never notify")
}

func TestHandleMaliciousFlowNotifies(t *testing.T) {
	label := 3
	store := &fakeStore{labelName: "Port Scan", protoName: "TCP", hostName: "web-01"}
	feed := &fakeFeed{}
	notifier := &fakeNotifier{}
	c := NewConsumer(store, feed, notifier, testLogger())

	rec := models.IngestRecord{
		Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		SrcIP:     "::ffff:1.2.3.4", SrcPort: 1,
		DstIP: "::ffff:192.168.1.9", DstPort: 80,
		Protocol: 6,
		Label:    &label,
		Score:    0.92,
	}
	require.NoError(t, c.Handle(context.Background(), rec))

	require.NotNil(t, store.alerts[0])
	require.Len(t, feed.published, 1)
	assert.Equal(t, "Port Scan", feed.published[0].Label)
	assert.Equal(t, "TCP", feed.published[0].Protocol)
	assert.Equal(t, 0.92, feed.published[0].Score)

	require.Len(t, notifier.titles, 1)
	assert.Equal(t, "Port Scan attack detected", notifier.titles[0])
}

func TestHandleUnknownLabelStillPublishes(t *testing.T) {
	label := 99
	store := &fakeStore{labelName: ""}
	feed := &fakeFeed{}
	c := NewConsumer(store, feed, nil, testLogger())

	rec := models.IngestRecord{
		SrcIP: "::ffff:1.2.3.4", DstIP: "::ffff:5.6.7.8",
		Protocol: 6, Label: &label, Timestamp: time.Now(),
	}
	require.NoError(t, c.Handle(context.Background(), rec))
	require.Len(t, feed.published, 1)
	assert.Equal(t, "Unknown", feed.published[0].Label)
}
