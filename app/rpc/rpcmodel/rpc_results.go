package rpcmodel

// GetBestBlockResult models the data from the getbestblock command. Tx and
// Atx are the views of the block described on BlockResult.
type GetBestBlockResult struct {
	Hash   string   `json:"hash"`
	Height uint32   `json:"height"`
	Tx     []string `json:"tx"`
	Atx    []string `json:"atx"`
}

// BlockResult models the verbose data of a block. Tx lists the block's
// regular and recovery transactions plus the alerts that matured at its
// height. Atx lists the alerts it confirmed.
type BlockResult struct {
	Hash              string   `json:"hash"`
	Height            uint32   `json:"height"`
	PreviousBlockHash string   `json:"previousblockhash"`
	Time              int64    `json:"time"`
	Tx                []string `json:"tx"`
	Atx               []string `json:"atx"`
}

// VaultAddressResult models the data returned by getnewvaultalertaddress and
// getnewvaultinstantaddress.
type VaultAddressResult struct {
	Address      string `json:"address"`
	RedeemScript string `json:"redeemScript"`
}

// SignRecoveryTransactionError describes an input that could not be signed.
type SignRecoveryTransactionError struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Index int    `json:"index"`
	Error string `json:"error"`
}

// SignRecoveryTransactionResult models the data from the
// signrecoverytransaction command.
type SignRecoveryTransactionResult struct {
	Hex      string                         `json:"hex"`
	Complete bool                           `json:"complete"`
	Errors   []SignRecoveryTransactionError `json:"errors,omitempty"`
}

// GetAlertStateResult models the data from the getalertstate command.
// Height is omitted for outpoints that carry no height.
type GetAlertStateResult struct {
	State  string  `json:"state"`
	Height *uint32 `json:"height,omitempty"`
}
