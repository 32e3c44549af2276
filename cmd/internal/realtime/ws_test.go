package realtime

import (
	"context"
	"testing"
	"time"

	"frontdesk/cmd/internal/notification"
	"frontdesk/cmd/internal/realtime/realtimetest"
	v1 "frontdesk/contracts/realtime/v1"
)

func startWS(t *testing.T, srv *realtimetest.Server, sess *fakeSession, mutate ...func(*Config)) (*Channel, *notification.Sink) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = srv.URL()
	cfg.ReconnectDelay = 50 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}
	sink := notification.NewSink(notification.DefaultCapacity)
	ch := NewChannel(cfg, &WSTransport{}, sess, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ch, sink
}

func TestWSTransport_EndToEnd(t *testing.T) {
	srv := realtimetest.New(t, realtimetest.WithRequiredToken("access-1"))
	ch, sink := startWS(t, srv, newFakeSession("reception"))

	ch.Connect()
	eventually(t, "subscribed", func() bool {
		return srv.Subscribers(v1.ChannelAdmin) == 1 && srv.Subscribers(v1.ChannelReception) == 1
	})
	eventually(t, "acknowledged", func() bool { return len(ch.Acknowledged()) == 2 })

	if n := srv.Notify(v1.ChannelReception, v1.NotificationData{Title: "Late checkout", Message: "Room 12"}); n != 1 {
		t.Fatalf("Notify delivered=%d want=1", n)
	}
	srv.Notify(v1.ChannelHousekeeping, v1.NotificationData{Message: "not for reception"})
	eventually(t, "notification stored", func() bool { return sink.Len() == 1 })
	if got := sink.List()[0]; got.Title != "Late checkout" || got.Channel != v1.ChannelReception {
		t.Fatalf("notification=%+v", got)
	}

	if tokens := srv.Tokens(); len(tokens) != 1 || tokens[0] != "access-1" {
		t.Fatalf("handshake tokens=%v want=[access-1]", tokens)
	}
}

func TestWSTransport_ReconnectsAfterServerDrop(t *testing.T) {
	srv := realtimetest.New(t)
	ch, _ := startWS(t, srv, newFakeSession("housekeeping"))

	ch.Connect()
	<-srv.Connected()
	eventually(t, "subscribed", func() bool { return srv.Subscribers(v1.ChannelHousekeeping) == 1 })

	srv.DropAll()
	select {
	case <-srv.Connected():
	case <-time.After(2 * time.Second):
		t.Fatalf("no reconnect after drop")
	}
	eventually(t, "resubscribed", func() bool { return srv.Subscribers(v1.ChannelHousekeeping) == 1 })
	if st := ch.State(); st != StateConnected {
		t.Fatalf("State()=%q want=%q", st, StateConnected)
	}
}

func TestWSTransport_PongTimeoutRedials(t *testing.T) {
	srv := realtimetest.New(t)
	srv.SetSilent(true)
	ch, _ := startWS(t, srv, newFakeSession("reception"), func(c *Config) {
		c.HeartbeatInterval = 20 * time.Millisecond
		c.PongTimeout = 30 * time.Millisecond
	})

	ch.Connect()
	<-srv.Connected()
	select {
	case <-srv.Connected():
	case <-time.After(2 * time.Second):
		t.Fatalf("no redial after missed pong")
	}
}

func TestWSTransport_RateLimitedConnectionRedials(t *testing.T) {
	// Two subscribe frames and one ping fit; the second ping trips the limit.
	srv := realtimetest.New(t, realtimetest.WithRateLimit(3, time.Minute))
	ch, _ := startWS(t, srv, newFakeSession("reception"), func(c *Config) {
		c.HeartbeatInterval = 15 * time.Millisecond
	})

	ch.Connect()
	<-srv.Connected()
	select {
	case <-srv.Connected():
	case <-time.After(2 * time.Second):
		t.Fatalf("no redial after rate-limited close")
	}
	if tokens := srv.Tokens(); len(tokens) < 2 {
		t.Fatalf("handshakes=%d want>=2", len(tokens))
	}
	eventually(t, "resubscribed", func() bool { return srv.Subscribers(v1.ChannelReception) == 1 })
}

func TestWSTransport_RejectedHandshake(t *testing.T) {
	srv := realtimetest.New(t, realtimetest.WithRequiredToken("other"))
	ch, _ := startWS(t, srv, newFakeSession("reception"))

	ch.Connect()
	eventually(t, "reconnect scheduled", func() bool { return ch.View().ReconnectPending })
	if n := srv.Connections(); n != 0 {
		t.Fatalf("Connections()=%d want=0", n)
	}
}
