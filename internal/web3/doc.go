// Package web3 defines the chain capabilities the keeper needs: typed reads
// of the Livepeer RoundsManager and BondingManager contracts, the three
// privileged write operations, receipt tracking, and the signer abstraction
// that authorises them. Network definitions (chain ID and contract
// addresses) are loaded from YAML so deployments can target testnets without
// a rebuild.
package web3
