package provider

import (
	"os"
	"path/filepath"
	"testing"

	"OrchKeeper/internal/config"
	xerrors "OrchKeeper/internal/errors"
)

func TestResolveNetworkDefaultsToArbitrum(t *testing.T) {
	network, err := ResolveNetwork(config.ChainConfig{ChainID: 42161})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if network.ChainID != 42161 || network.BondingManagerAddress().Hex() != "0x35Bcf3c30594191d53231E4FF333E8A770453e40" {
		t.Fatalf("unexpected network %+v", network)
	}
}

func TestResolveNetworkRejectsChainMismatch(t *testing.T) {
	_, err := ResolveNetwork(config.ChainConfig{ChainID: 1})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidConfig || !xerrors.IsFatal(err) {
		t.Fatalf("expected fatal INVALID_CONFIG, got %v", err)
	}
}

func TestResolveNetworkFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := `networks:
  devnet:
    chain_id: 1337
    bonding_manager: "0x0000000000000000000000000000000000000b0b"
    rounds_manager: "0x0000000000000000000000000000000000000a0a"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	network, err := ResolveNetwork(config.ChainConfig{Network: "devnet", NetworksFile: path})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if network.ChainID != 1337 {
		t.Fatalf("unexpected chain id %d", network.ChainID)
	}

	if _, err := ResolveNetwork(config.ChainConfig{Network: "missing", NetworksFile: path}); err == nil {
		t.Fatal("expected unknown network to fail")
	}
}
