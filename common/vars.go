package common

var (
	DefaultChunkSize        = 500
	DefaultConcurrency      = 100
	DefaultProxyConcurrency = 3
	DefaultPortPoolSize     = 3
	DefaultBasePort         = 10800
	DefaultFallbackResolver = "8.8.4.4:53"
	DefaultTestURL          = "http://google.com"
	DefaultOutputDir        = "results"
	DefaultClientDir        = "slipstream-client"
)

type Info struct {
	SubnetFile string // -f CIDR list file
	Domain     string // -d probe domain
	RecordType string // -type DNS record type
	OutputDir  string // -o results directory
	Threads    int    // -t probe concurrency
	RandomSub  bool   // -random random subdomain prefix
	Slipstream bool   // -slipstream run proxy validation
	SaveJSON   bool   // -save-json also write the JSON report
	Verbose    bool   // -v debug logging

	ProxyThreads     int
	PortPoolSize     int
	BasePort         int
	FallbackResolver string
	TestURL          string
	ClientDir        string
}

var Infos Info
