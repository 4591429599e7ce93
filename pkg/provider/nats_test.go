package provider

import (
	"context"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/capability-bridge/pkg/commsutil"
	"github.com/morezero/capability-bridge/pkg/wire"
)

func TestProvider_ServesOverComms(t *testing.T) {
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: 14260, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - server: %v", testPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatalf("%s - server not ready", testPrefix)
	}
	defer ns.Shutdown()

	providerConn, err := commsutil.Connect(ns.ClientURL(), "provider")
	if err != nil {
		t.Fatalf("%s - connect: %v", testPrefix, err)
	}
	defer providerConn.Close()

	p := newTestProvider(t, 10)
	if err := p.Start(providerConn); err != nil {
		t.Fatalf("%s - start: %v", testPrefix, err)
	}

	client, err := commsutil.Connect(ns.ClientURL(), "client")
	if err != nil {
		t.Fatalf("%s - connect: %v", testPrefix, err)
	}
	defer client.Close()

	events := make(chan *comms.Msg, 4)
	if _, err := client.ChanSubscribe(commsutil.EventsSubject(p.Subject()), events); err != nil {
		t.Fatalf("%s - subscribe: %v", testPrefix, err)
	}
	if err := client.Flush(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := commsutil.RequestEnvelope(ctx, client, p.Subject(), request(t, "r1", wire.MethodCall, wire.CallParams{Name: "b"}))
	if err != nil {
		t.Fatalf("%s - request: %v", testPrefix, err)
	}
	if !resp.Ok || resp.ID != "r1" {
		t.Fatalf("%s - unexpected response %+v", testPrefix, resp)
	}

	if err := p.Register(Capability{Spec: wire.CapabilitySpec{Name: "d"}, Handler: Echo}); err != nil {
		t.Fatal(err)
	}
	expectNotification(t, events, wire.NotificationListChanged)

	p.Shutdown("test over")
	expectNotification(t, events, wire.NotificationDisconnect)
}

func expectNotification(t *testing.T, events chan *comms.Msg, want string) {
	t.Helper()
	select {
	case msg := <-events:
		var n wire.Notification
		if err := commsutil.DecodePayload(msg.Data, &n); err != nil {
			t.Fatalf("%s - bad notification: %v", testPrefix, err)
		}
		if n.Type != want {
			t.Fatalf("%s - notification = %s, want %s", testPrefix, n.Type, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s - no %s notification", testPrefix, want)
	}
}
