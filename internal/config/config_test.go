package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultPopulatesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.ForeignChainMaxReorgDepth != 20 {
		t.Errorf("expected default reorg depth 20, got %d", cfg.ForeignChainMaxReorgDepth)
	}
	if cfg.Webservice.Port != 8640 {
		t.Errorf("expected default webservice port 8640, got %d", cfg.Webservice.Port)
	}
	if cfg.Webservice.Enabled {
		t.Error("expected webservice disabled by default")
	}
}

func TestLoadWithoutFileAppliesDefaultsAndEnvOverrides(t *testing.T) {
	os.Setenv("BRIDGE_FOREIGN_RPC_URL", "https://foreign.example")
	os.Setenv("BRIDGE_HOME_MAX_REORG_DEPTH", "5")
	defer os.Unsetenv("BRIDGE_FOREIGN_RPC_URL")
	defer os.Unsetenv("BRIDGE_HOME_MAX_REORG_DEPTH")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ForeignRPCURL != "https://foreign.example" {
		t.Errorf("expected env override to apply, got %s", cfg.ForeignRPCURL)
	}
	if cfg.HomeChainMaxReorgDepth != 5 {
		t.Errorf("expected env override to apply, got %d", cfg.HomeChainMaxReorgDepth)
	}
	if cfg.ForeignRPCTimeout != 30*time.Second {
		t.Errorf("expected default timeout to survive, got %s", cfg.ForeignRPCTimeout)
	}
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error on empty config")
	}
	for _, want := range []string{"foreign_rpc_url", "home_rpc_url", "validator_private_key", "home_chain_gas_price"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected validation error to mention %q, got: %s", want, err.Error())
		}
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := Default()
	cfg.ForeignRPCURL = "https://foreign.example"
	cfg.HomeRPCURL = "https://home.example"
	cfg.ForeignChainTokenContractAddress = "0x1111111111111111111111111111111111111111"
	cfg.ForeignBridgeContractAddress = "0x2222222222222222222222222222222222222222"
	cfg.HomeBridgeContractAddress = "0x3333333333333333333333333333333333333333"
	cfg.ValidatorPrivateKey = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a0"
	cfg.HomeChainGasPrice = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
