package web3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadNetworksMergesBuiltins(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := `networks:
  arbitrum-sepolia:
    chain_id: 421614
    bonding_manager: "0x0000000000000000000000000000000000000b0d"
    rounds_manager: "0x0000000000000000000000000000000000000a0d"
    description: testnet
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	defs, err := LoadNetworks(path)
	if err != nil {
		t.Fatalf("load networks: %v", err)
	}

	main, err := defs.Resolve("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if main.ChainID != 42161 {
		t.Fatalf("unexpected default chain id %d", main.ChainID)
	}

	testnet, err := defs.Resolve("arbitrum-sepolia")
	if err != nil {
		t.Fatalf("resolve testnet: %v", err)
	}
	if testnet.ChainID != 421614 {
		t.Fatalf("unexpected chain id %d", testnet.ChainID)
	}
	if testnet.BondingManagerAddress() != common.HexToAddress("0x0000000000000000000000000000000000000b0d") {
		t.Fatalf("unexpected bonding manager %s", testnet.BondingManagerAddress().Hex())
	}
	if testnet.RoundsManagerAddress() != common.HexToAddress("0x0000000000000000000000000000000000000a0d") {
		t.Fatalf("unexpected rounds manager %s", testnet.RoundsManagerAddress().Hex())
	}
}

func TestResolveRejectsBadDefinitions(t *testing.T) {
	t.Parallel()

	defs := NetworkDefinitions{Networks: map[string]NetworkDefinition{
		"broken":  {ChainID: 1, BondingManager: "nope", RoundsManager: "0x0000000000000000000000000000000000000001"},
		"noid":    {BondingManager: "0x0000000000000000000000000000000000000001", RoundsManager: "0x0000000000000000000000000000000000000002"},
		"norunds": {ChainID: 1, BondingManager: "0x0000000000000000000000000000000000000001"},
	}}
	for _, name := range []string{"broken", "noid", "norunds", "missing"} {
		if _, err := defs.Resolve(name); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}

func TestReceiptSucceeded(t *testing.T) {
	t.Parallel()

	if !(Receipt{Status: 1}).Succeeded() {
		t.Fatal("status 1 is success")
	}
	if (Receipt{Status: 0}).Succeeded() {
		t.Fatal("status 0 is a revert")
	}
}
