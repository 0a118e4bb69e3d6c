package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestQUICSendAndReceive(t *testing.T) {
	l, dir := startTestListener(t, func(o *Options) {
		o.Transport = "quic"
	})

	src := filepath.Join(t.TempDir(), "q.txt")
	if err := os.WriteFile(src, []byte("over quic"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := DialQUIC(ctx, listenerAddr(l))
	if err != nil {
		t.Fatalf("DialQUIC() error = %v", err)
	}
	defer s.Disconnect()

	stored, err := s.SendFile(src)
	if err != nil {
		t.Fatalf("SendFile() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, stored))
	if err != nil || string(got) != "over quic" {
		t.Errorf("received contents = %q, %v", got, err)
	}
}

func TestGenerateTLSConfig(t *testing.T) {
	conf, err := generateTLSConfig()
	if err != nil {
		t.Fatalf("generateTLSConfig() error = %v", err)
	}
	if len(conf.Certificates) != 1 {
		t.Errorf("certificates = %d, want 1", len(conf.Certificates))
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != transferALPN {
		t.Errorf("NextProtos = %v, want [%s]", conf.NextProtos, transferALPN)
	}
}
