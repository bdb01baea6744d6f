package chains

import "testing"

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()

	cfg, ok := reg.Lookup(42161)
	if !ok {
		t.Fatal("arbitrum must be supported")
	}
	if cfg.Name != "arbitrum" {
		t.Errorf("name = %q, want arbitrum", cfg.Name)
	}
	if len(cfg.Tokens) == 0 {
		t.Error("arbitrum must advertise tokens")
	}

	if _, ok := reg.Lookup(1); ok {
		t.Error("unconfigured chain must not resolve")
	}
}

func TestRegistryAddOverrides(t *testing.T) {
	reg := DefaultRegistry()
	reg.Add(ChainConfig{ChainID: 42161, Name: "arbitrum", RPCURL: "http://localhost:8545"})

	cfg, ok := reg.Lookup(42161)
	if !ok {
		t.Fatal("lookup after override")
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Errorf("rpc url = %q, want override", cfg.RPCURL)
	}
}

func TestRegistryAllOrdered(t *testing.T) {
	reg := NewRegistry(
		ChainConfig{ChainID: 42161, Name: "arbitrum"},
		ChainConfig{ChainID: 137, Name: "polygon"},
		ChainConfig{ChainID: 10, Name: "optimism"},
	)

	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ChainID < all[i-1].ChainID {
			t.Fatal("All must be ordered by chain id")
		}
	}
}

func TestSourceChains(t *testing.T) {
	items := DefaultRegistry().SourceChains()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].ChainID != 137 || items[0].Name != "polygon" {
		t.Errorf("first = %+v, want polygon", items[0])
	}
	if items[1].ChainID != 42161 || items[1].Name != "arbitrum" {
		t.Errorf("second = %+v, want arbitrum", items[1])
	}
}

func TestDefaultHub(t *testing.T) {
	hub := DefaultHub()
	if hub.ChainID != 8453 || hub.Network != "base" {
		t.Errorf("hub = %+v", hub)
	}
	if hub.Contract != "" {
		t.Error("hub contract must come from configuration")
	}
}
