package commsutil

import "testing"

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(ConnectParams{URL: "nats://127.0.0.1:1", Name: "unreachable", MaxReconnects: -1})
	if err == nil {
		t.Fatal("commsutil:connect_test - expected error for unreachable server")
	}
}

func TestConnect_Embedded(t *testing.T) {
	ns, err := StartEmbedded(EmbeddedParams{Port: -1})
	if err != nil {
		t.Fatalf("commsutil:connect_test - StartEmbedded: %v", err)
	}
	defer func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	}()

	nc, err := Connect(ConnectParams{URL: ns.ClientURL(), Name: "connect-test"})
	if err != nil {
		t.Fatalf("commsutil:connect_test - Connect: %v", err)
	}
	defer nc.Close()

	if !nc.IsConnected() {
		t.Error("commsutil:connect_test - expected connected client")
	}
	if nc.Opts.Name != "connect-test" || nc.Opts.MaxReconnect != 60 {
		t.Errorf("commsutil:connect_test - unexpected options: name=%s maxReconnect=%d", nc.Opts.Name, nc.Opts.MaxReconnect)
	}
}
