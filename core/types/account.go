package types

import "math/big"

// Account holds the per-address ledger state tracked by the token engine.
// Allowances live under their own storage keys rather than inside the account
// record so that approvals do not rewrite the balance entry.
type Account struct {
	Nonce       uint64   `json:"nonce"`
	BalanceGiro *big.Int `json:"balanceGiro"`
}
