package common

import (
	"flag"
	"fmt"
	"os"
)

func ParseFlags() {
	flag.StringVar(&Infos.SubnetFile, "f", "", "CIDR list file, one block per line")
	flag.StringVar(&Infos.Domain, "d", "google.com", "domain to resolve against each candidate")
	flag.StringVar(&Infos.RecordType, "type", "A", "DNS record type (A, AAAA, MX, TXT, NS)")
	flag.StringVar(&Infos.OutputDir, "o", DefaultOutputDir, "directory for result files")
	flag.IntVar(&Infos.Threads, "t", DefaultConcurrency, "number of concurrent probes")
	flag.BoolVar(&Infos.RandomSub, "random", false, "prepend a random subdomain to each query")
	flag.BoolVar(&Infos.Slipstream, "slipstream", false, "validate found resolvers as tunnel endpoints")
	flag.BoolVar(&Infos.SaveJSON, "save-json", false, "write the JSON report alongside the text file")
	flag.BoolVar(&Infos.Verbose, "v", false, "debug logging")

	flag.Usage = func() {
		fmt.Println("usage:")
		fmt.Println("  scan a range file:       ./slipscan -f subnets.txt")
		fmt.Println("  scan and validate:       ./slipscan -f subnets.txt -slipstream -d example.com")
		fmt.Println("flags:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if Infos.SubnetFile == "" {
		fmt.Println("[!] -f (CIDR list file) is required")
		flag.Usage()
		os.Exit(1)
	}

	if Infos.Domain == "" {
		fmt.Println("[!] -d (domain) must not be empty")
		flag.Usage()
		os.Exit(1)
	}
}
