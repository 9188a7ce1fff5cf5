package cli

import (
	"testing"

	"cofrinho/internal/config"
)

func TestConnectAMQPWithoutURL(t *testing.T) {
	cfg := config.Defaults()
	if c := ConnectAMQP(SetupLogger("error", "text"), cfg); c != nil {
		t.Fatal("expected nil client without AMQP_URL")
	}
}

func TestAMQPConfig(t *testing.T) {
	cfg := config.Defaults()
	got := AMQPConfig(cfg)
	if got.Exchange != "cofrinho" || got.SyncQueue != "ledger_sync" || got.DiagnosticsQueue != "diagnostics" {
		t.Fatalf("unexpected config %+v", got)
	}
}
