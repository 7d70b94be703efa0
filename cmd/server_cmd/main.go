package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/TEENet-io/inscription-bridge/cmd"
	"github.com/TEENet-io/inscription-bridge/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "BRIDGE_CONFIG"
	DOT_ENV_FILE         = ".env"
)

func main() {
	// A .env next to the binary is optional; real env vars win over it.
	if cmd.FileExists(DOT_ENV_FILE) {
		if err := godotenv.Load(DOT_ENV_FILE); err != nil {
			fmt.Printf("Error loading %s: %s\n", DOT_ENV_FILE, err)
			os.Exit(1)
		}
	}

	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	// Without one, everything comes from the environment.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	if _config_file != "" {
		fmt.Printf("Bridge server configuration file = %s\n", _config_file)
		if !cmd.FileExists(_config_file) {
			fmt.Printf("Bridge server configuration file not found: %s\n", _config_file)
			os.Exit(1)
		}
		if !initializeViper(_config_file) {
			os.Exit(1)
		}
	}

	// Make the configuration
	bsc := PrepareBridgeServerConfig()
	logconfig.ConfigLogger(bsc.LogLevel, bsc.LogFormat)

	fmt.Println("Starting bridge server... press Ctrl+C to kill the server")
	// Start server and block.
	if err := cmd.StartBridgeServerAndWait(bsc); err != nil {
		fmt.Printf("Bridge server stopped: %s\n", err)
		os.Exit(1)
	}
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s\n", err)
		return false
	}
	return true
}

// PrepareBridgeServerConfig reads configuration variables and returns a BridgeServerConfig.
func PrepareBridgeServerConfig() *cmd.BridgeServerConfig {
	viper.SetDefault("BTC_NETWORK", "regtest")
	viper.SetDefault("HTTP_IP", "0.0.0.0")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("DB_FILE_PATH", "bridge.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")

	return &cmd.BridgeServerConfig{
		// eth side
		EthRpcUrl:          viper.GetString("ETH_RPC_URL"),
		EthChainID:         viper.GetString("ETH_CHAIN_ID"),
		EthStartBlk:        viper.GetString("ETH_START_BLK"),
		EthConfirmations:   viper.GetString("ETH_CONFIRMATIONS"),
		BridgeContractAddr: viper.GetString("BRIDGE_CONTRACT_ADDR"),
		DstTokenAddr:       viper.GetString("DST_TOKEN_ADDR"),
		TokenName:          viper.GetString("TOKEN_NAME"),
		TokenSymbol:        viper.GetString("TOKEN_SYMBOL"),
		TokenDecimals:      viper.GetString("TOKEN_DECIMALS"),
		MinterFee:          viper.GetString("MINTER_FEE"),
		// signer side
		SignerServer:       viper.GetString("SIGNER_SERVER"),
		SignerCert:         viper.GetString("SIGNER_CERT"),
		SignerKey:          viper.GetString("SIGNER_KEY"),
		SignerCACert:       viper.GetString("SIGNER_CA_CERT"),
		SignerMasterSecret: viper.GetString("SIGNER_MASTER_SECRET"),
		EvmKeyPath:         viper.GetString("EVM_KEY_PATH"),
		BtcKeyPath:         viper.GetString("BTC_KEY_PATH"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// btc side
		BtcRpcServer:   viper.GetString("BTC_RPC_SERVER"),
		BtcRpcPort:     viper.GetString("BTC_RPC_PORT"),
		BtcRpcUsername: viper.GetString("BTC_RPC_USERNAME"),
		BtcRpcPwd:      viper.GetString("BTC_RPC_PWD"),
		BtcNetwork:     viper.GetString("BTC_NETWORK"),
		BtcChainID:     viper.GetString("BTC_CHAIN_ID"),
		BtcMinConf:     viper.GetString("BTC_MIN_CONF"),
		// indexer side
		IndexerUrl:     viper.GetString("INDEXER_URL"),
		IndexerNetwork: viper.GetString("INDEXER_NETWORK"),
		// Http side
		HttpIp:     viper.GetString("HTTP_IP"),
		HttpPort:   viper.GetString("HTTP_PORT"),
		AdminToken: viper.GetString("ADMIN_TOKEN"),
		// Log side
		LogLevel:  viper.GetString("LOG_LEVEL"),
		LogFormat: viper.GetString("LOG_FORMAT"),
	}
}
