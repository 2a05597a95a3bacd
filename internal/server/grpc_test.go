package server

import (
	"testing"

	"google.golang.org/grpc/health"
)

func TestNewGRPCServer_RegistersHealth(t *testing.T) {
	s := NewGRPCServer(health.NewServer())
	defer s.Stop()
	info := s.GetServiceInfo()
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Errorf("services = %v, want grpc.health.v1.Health", info)
	}
	if len(info) != 1 {
		t.Errorf("registered %d services, want 1", len(info))
	}
}
