package state

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)

	// key-value pairs, used for EvmParams and the bridge settings
	kvTable = `CREATE TABLE IF NOT EXISTS kv (
		key VARCHAR(64) PRIMARY KEY NOT NULL,
		value BLOB NOT NULL
	);`

	// signed mint orders waiting for the Minted event. sender and src_token
	// are Id256 hex strings without prefix '0x'
	mintOrderTable = `CREATE TABLE IF NOT EXISTS mint_order (
		sender CHAR(64) NOT NULL,
		nonce INTEGER NOT NULL,
		src_token CHAR(64) NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (sender, nonce),
		CONSTRAINT chk_nonce CHECK (nonce >= 0 AND nonce <= 4294967295),
		CONSTRAINT chk_payload CHECK (length(payload) > 0),
		CONSTRAINT chk_sender CHECK (sender != '` + strZeroBytes32 + `')
	);
	CREATE INDEX IF NOT EXISTS idx_mint_order_token ON mint_order (sender, src_token, nonce);`

	// burn requests being turned into btc transfers
	burnRequestTable = `CREATE TABLE IF NOT EXISTS burn_request (
		request_id INTEGER PRIMARY KEY NOT NULL,
		address VARCHAR(62) NOT NULL,
		source_ref TEXT NOT NULL,
		transferred BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT chk_request_id CHECK (request_id >= 0 AND request_id <= 4294967295),
		CONSTRAINT chk_address CHECK (length(address) > 0)
	);`

	// validated deposit inscriptions, keyed by the Id256 of the token they mint
	inscriptionTable = `CREATE TABLE IF NOT EXISTS inscription (
		token CHAR(64) PRIMARY KEY NOT NULL,
		kind VARCHAR(8) NOT NULL,
		asset_id TEXT NOT NULL,
		reveal_tx CHAR(64) NOT NULL,
		amount TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		CONSTRAINT chk_kind CHECK (kind IN ('brc20', 'nft', 'rune'))
	);`

	// deposit txs already turned into mint orders, keyed by txid
	depositTable = `CREATE TABLE IF NOT EXISTS deposit (
		tx_id CHAR(64) PRIMARY KEY NOT NULL,
		token CHAR(64) NOT NULL,
		sender CHAR(64) NOT NULL,
		nonce INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`

	// withdraw txs built for a burn request. sent is set once the node
	// accepted the tx; an unsent row is rebroadcast on the next attempt
	withdrawalTxTable = `CREATE TABLE IF NOT EXISTS withdrawal_tx (
		request_id INTEGER PRIMARY KEY NOT NULL,
		tx_id CHAR(64) NOT NULL,
		raw BLOB NOT NULL,
		sent BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT chk_raw CHECK (length(raw) > 0)
	);`

	// deposit and withdrawal history per wallet
	operationTable = `CREATE TABLE IF NOT EXISTS operation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet VARCHAR(62) NOT NULL,
		direction VARCHAR(10) NOT NULL,
		kind VARCHAR(8) NOT NULL,
		asset_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		status VARCHAR(12) NOT NULL,
		tx_id VARCHAR(66) NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		CONSTRAINT chk_direction CHECK (direction IN ('deposit', 'withdrawal')),
		CONSTRAINT chk_status CHECK (status IN ('minted', 'signed', 'transferred', 'failed'))
	);
	CREATE INDEX IF NOT EXISTS idx_operation_wallet ON operation (wallet, id);`

	mintOrderColumns   = " sender, src_token, nonce, payload "
	operationColumns   = " id, wallet, direction, kind, asset_id, amount, status, tx_id, created_at "
	inscriptionColumns = " token, kind, asset_id, reveal_tx, amount, created_at "
	depositColumns     = " tx_id, token, sender, nonce, created_at "
)
