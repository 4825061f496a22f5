package config

import (
	"testing"

	"pebblekernel/bootinfo"
	"pebblekernel/mem"
)

func TestDefaultMatchesPackageCapacities(t *testing.T) {
	cfg := Default()
	if cfg.NewQueueCapacity <= 0 || cfg.ReadyQueueCapacity <= 0 {
		t.Fatalf("expected positive queue capacities, got %+v", cfg)
	}
	if cfg.ScancodeQueueCapacity <= 0 || cfg.MousePacketQueueCapacity <= 0 {
		t.Fatalf("expected positive ring capacities, got %+v", cfg)
	}
	if cfg.HeapBase == 0 || cfg.HeapPages <= 0 {
		t.Fatalf("expected a non-zero heap range, got %+v", cfg)
	}
}

func TestFromBootInfoRejectsInvalidHandoff(t *testing.T) {
	b := &bootinfo.BootInfo{}
	if _, ok := FromBootInfo(b); ok {
		t.Fatalf("expected an empty BootInfo to be invalid")
	}
}

func TestFromBootInfoAcceptsValidHandoff(t *testing.T) {
	b := &bootinfo.BootInfo{
		Framebuffer: bootinfo.FrameBufferInfo{HorizontalResolution: 1024, VerticalResolution: 768},
		MemoryMap:   []mem.PhysRegion{{Start: 0, End: 1 << 20, Kind: mem.Usable}},
		RecursiveIndex: 508,
	}
	cfg, ok := FromBootInfo(b)
	if !ok {
		t.Fatalf("expected a valid BootInfo to be accepted")
	}
	if cfg.KernelStackPages <= 0 {
		t.Fatalf("expected a populated config, got %+v", cfg)
	}
}
