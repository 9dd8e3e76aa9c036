package common

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
)

func SlipscanInit() {
	// .env is optional; system environment still applies without it.
	_ = godotenv.Load()

	Infos.ProxyThreads = envInt("SLIPSCAN_PROXY_THREADS", DefaultProxyConcurrency)
	Infos.PortPoolSize = envInt("SLIPSCAN_PORT_POOL_SIZE", DefaultPortPoolSize)
	Infos.BasePort = envInt("SLIPSCAN_BASE_PORT", DefaultBasePort)
	Infos.FallbackResolver = envStr("SLIPSCAN_FALLBACK_RESOLVER", DefaultFallbackResolver)
	Infos.TestURL = envStr("SLIPSCAN_TEST_URL", DefaultTestURL)
	Infos.ClientDir = envStr("SLIPSCAN_CLIENT_DIR", DefaultClientDir)

	ParseFlags()

	if Infos.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}

	gologger.Info().Msgf("scan configuration:")
	gologger.Info().Msgf("    subnet file:  %s", Infos.SubnetFile)
	gologger.Info().Msgf("    domain:       %s", Infos.Domain)
	gologger.Info().Msgf("    record type:  %s", Infos.RecordType)
	gologger.Info().Msgf("    concurrency:  %d", Infos.Threads)
	gologger.Info().Msgf("    output dir:   %s", Infos.OutputDir)
	gologger.Info().Msgf("    validation:   %v", Infos.Slipstream)
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		gologger.Warning().Msgf("ignoring invalid %s=%q", key, v)
	}
	return fallback
}
