package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/secretconn"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	kp, _ := identity.Generate()

	path := writeConfig(t, `
node:
  data_dir: /var/lib/tmconn
  protocol_version: v0.33
  handshake_timeout: 5s
listeners:
  - transport: tcp
    address: 0.0.0.0:26656
  - transport: ws
    address: 0.0.0.0:8443
    path: /p2p
peers:
  - transport: quic
    address: peer.example.com:26656
    expected_id: `+kp.ID().String()+`
logging:
  level: debug
  format: json
metrics:
  enabled: true
  address: 127.0.0.1:9091
rpc:
  endpoint: http://127.0.0.1:26657
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.DataDir != "/var/lib/tmconn" {
		t.Errorf("data_dir = %q", cfg.Node.DataDir)
	}
	if cfg.Version() != secretconn.V0_33 {
		t.Errorf("version = %v, want V0_33", cfg.Version())
	}
	if cfg.Node.HandshakeTimeout != 5*time.Second {
		t.Errorf("handshake_timeout = %v", cfg.Node.HandshakeTimeout)
	}
	if len(cfg.Listeners) != 2 || cfg.Listeners[1].Path != "/p2p" {
		t.Errorf("listeners = %+v", cfg.Listeners)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].ExpectedID != kp.ID().String() {
		t.Errorf("peers = %+v", cfg.Peers)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != "127.0.0.1:9091" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.RPC.Endpoint != "http://127.0.0.1:26657" {
		t.Errorf("rpc = %+v", cfg.RPC)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.DataDir != "./data" {
		t.Errorf("default data_dir = %q", cfg.Node.DataDir)
	}
	if cfg.Version() != secretconn.V0_34 {
		t.Errorf("default version = %v, want V0_34", cfg.Version())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
	if cfg.Node.HandshakeTimeout != 10*time.Second {
		t.Errorf("default handshake_timeout = %v", cfg.Node.HandshakeTimeout)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"bad version",
			"node:\n  protocol_version: v0.99\n",
			"protocol_version",
		},
		{
			"bad listener transport",
			"listeners:\n  - transport: smoke-signal\n    address: 127.0.0.1:1\n",
			"unknown transport",
		},
		{
			"bad listener address",
			"listeners:\n  - transport: tcp\n    address: not-an-address\n",
			"address",
		},
		{
			"peer missing address",
			"peers:\n  - transport: tcp\n",
			"address is required",
		},
		{
			"bad expected id",
			"peers:\n  - transport: tcp\n    address: h:1\n    expected_id: xyz\n",
			"expected_id",
		},
		{
			"bad metrics address",
			"metrics:\n  enabled: true\n  address: nope\n",
			"metrics.address",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Listeners = []ListenerConfig{{Transport: "tcp", Address: "127.0.0.1:26656"}}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Listeners) != 1 || loaded.Listeners[0].Address != "127.0.0.1:26656" {
		t.Errorf("round trip lost listeners: %+v", loaded.Listeners)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("Load of missing file should fail")
	}
}
