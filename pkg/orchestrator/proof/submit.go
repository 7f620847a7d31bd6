// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package proof

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gweizero/engine/pkg/logger/log"
)

// registryABIJSON is the slice of the proof registry's ABI the builder
// needs: the record function and the mint event.
const registryABIJSON = `[
  {
    "type": "function",
    "name": "recordProof",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "originalHash", "type": "bytes32"},
      {"name": "optimizedHash", "type": "bytes32"},
      {"name": "contractAddress", "type": "address"},
      {"name": "contractName", "type": "string"},
      {"name": "originalGas", "type": "uint32"},
      {"name": "optimizedGas", "type": "uint32"},
      {"name": "savingsPercentBps", "type": "uint32"}
    ],
    "outputs": [{"name": "tokenId", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "OptimizationProofMinted",
    "inputs": [
      {"name": "tokenId", "type": "uint256", "indexed": true},
      {"name": "originalHash", "type": "bytes32", "indexed": false},
      {"name": "optimizedHash", "type": "bytes32", "indexed": false}
    ]
  }
]`

// Receipt is the outcome of an on-chain submission.
type Receipt struct {
	TxHash          string `json:"txHash"`
	TokenID         string `json:"tokenId,omitempty"`
	RegistryAddress string `json:"registryAddress"`
	ChainID         string `json:"chainId"`
}

func (b *Builder) submit(ctx context.Context, payload *Payload) (*Receipt, error) {
	client, err := ethclient.DialContext(ctx, b.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(b.cfg.SignerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	auth.Context = ctx

	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	registryAddr := ethcommon.HexToAddress(b.cfg.RegistryAddress)
	contract := bind.NewBoundContract(registryAddr, parsed, client, client, client)

	tx, err := contract.Transact(auth, "recordProof",
		hashToBytes32(payload.OriginalHash),
		hashToBytes32(payload.OptimizedHash),
		ethcommon.HexToAddress(payload.ContractAddress),
		payload.ContractName,
		payload.OriginalGas,
		payload.OptimizedGas,
		payload.SavingsPercentBps,
	)
	if err != nil {
		return nil, fmt.Errorf("submit proof: %w", err)
	}
	log.Infof("proof: submitted tx %s", tx.Hash().Hex())

	mined, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for proof tx: %w", err)
	}

	receipt := &Receipt{
		TxHash:          tx.Hash().Hex(),
		RegistryAddress: registryAddr.Hex(),
		ChainID:         chainID.String(),
	}
	mintedEvent := parsed.Events["OptimizationProofMinted"]
	for _, entry := range mined.Logs {
		if len(entry.Topics) >= 2 && entry.Topics[0] == mintedEvent.ID {
			receipt.TokenID = entry.Topics[1].Big().String()
			break
		}
	}
	return receipt, nil
}

func hashToBytes32(hexHash string) ethcommon.Hash {
	return ethcommon.HexToHash(hexHash)
}
