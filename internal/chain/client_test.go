package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestToRawTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	to := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	chainID := big.NewInt(1)
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Data:      []byte{0x38, 0xed, 0x17, 0x39},
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	receipt := &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(19000000)}

	raw := toRawTransaction(tx, receipt, 1700000000)
	if raw.Hash != tx.Hash().Hex() {
		t.Fatalf("hash mismatch: %s", raw.Hash)
	}
	if raw.To != to.Hex() {
		t.Fatalf("to mismatch: %s", raw.To)
	}
	if !strings.EqualFold(raw.From, crypto.PubkeyToAddress(key.PublicKey).Hex()) {
		t.Fatalf("from mismatch: %s", raw.From)
	}
	if raw.Input != "0x38ed1739" {
		t.Fatalf("input mismatch: %s", raw.Input)
	}
	if raw.BlockNumber != 19000000 || raw.Timestamp != 1700000000 || !raw.Failed {
		t.Fatalf("receipt fields mismatch: %+v", raw)
	}
}
