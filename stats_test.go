package call

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

func TestStatConsume(t *testing.T) {
	s := newStat(zaptest.NewLogger(t))

	test.That(t, s.Consume(webrtc.ICECandidatePairStats{ID: "pair-1", CurrentRoundTripTime: 0.2}), test.ShouldBeNil)
	test.That(t, s.Consume(webrtc.ICECandidatePairStats{ID: "pair-2", Nominated: true, CurrentRoundTripTime: 0.05}), test.ShouldBeNil)
	// a later non-nominated pair does not replace the nominated one
	test.That(t, s.Consume(webrtc.ICECandidatePairStats{ID: "pair-3", CurrentRoundTripTime: 0.5}), test.ShouldBeNil)

	test.That(t, s.Consume(webrtc.InboundRTPStreamStats{Kind: "audio", BytesReceived: 100, PacketsReceived: 10, PacketsLost: 1, Jitter: 0.01}), test.ShouldBeNil)
	test.That(t, s.Consume(webrtc.InboundRTPStreamStats{Kind: "video", BytesReceived: 1000, PacketsReceived: 20, PacketsLost: 2}), test.ShouldBeNil)
	test.That(t, s.Consume(webrtc.OutboundRTPStreamStats{Kind: "audio", BytesSent: 50}), test.ShouldBeNil)
	test.That(t, s.Consume(webrtc.CodecStats{ID: "codec-opus", MimeType: webrtc.MimeTypeOpus}), test.ShouldBeNil)
	test.That(t, s.Consume(webrtc.TransportStats{ID: "transport", BytesReceived: 4096}), test.ShouldBeNil)

	test.That(t, s.Consume(webrtc.PeerConnectionStats{}), test.ShouldBeError, errStatUnmanaged)

	snapshot := s.Generate()
	test.That(t, snapshot.ICECandidatePairStat.ID, test.ShouldEqual, "pair-2")
	test.That(t, snapshot.RoundTripTime(), test.ShouldEqual, 50*time.Millisecond)
	test.That(t, snapshot.BytesReceived(), test.ShouldEqual, uint64(1100))
	test.That(t, snapshot.PacketsReceived(), test.ShouldEqual, uint64(30))
	test.That(t, snapshot.PacketsLost(), test.ShouldEqual, int64(3))
	test.That(t, snapshot.Jitter(), test.ShouldEqual, 0.01)
	test.That(t, snapshot.ICETransportStat.BytesReceived, test.ShouldEqual, uint64(4096))
	test.That(t, snapshot.CodecStats, test.ShouldContainKey, "codec-opus")

	// snapshots do not share state with the collector
	snapshot.InboundRTPStats["audio"] = webrtc.InboundRTPStreamStats{}
	test.That(t, s.Generate().BytesReceived(), test.ShouldEqual, uint64(1100))
}

func TestStatConsumeReport(t *testing.T) {
	s := newStat(zaptest.NewLogger(t))
	s.ConsumeReport(webrtc.StatsReport{
		"in":   webrtc.InboundRTPStreamStats{Kind: "audio", PacketsReceived: 5},
		"peer": webrtc.PeerConnectionStats{},
	})
	test.That(t, s.Generate().PacketsReceived(), test.ShouldEqual, uint64(5))
}

func TestEmptyStat(t *testing.T) {
	var s Stat
	test.That(t, s.RoundTripTime(), test.ShouldEqual, time.Duration(0))
	test.That(t, s.BytesReceived(), test.ShouldEqual, uint64(0))
	test.That(t, s.Jitter(), test.ShouldEqual, 0.0)
}
