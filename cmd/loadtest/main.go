// Команда loadtest гоняет покупательские сценарии против REST API витрины
// и печатает сводку по задержкам и исходам.
package main

import (
	"fmt"
	"net/http"
	"os"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		exit("invalid config: %v", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.concurrency
	client := newAPIClient(cfg.baseURL, &http.Client{Transport: transport}, cfg.jwtSecret)

	result := runLoad(client, cfg)
	printReport(os.Stdout, result, cfg)

	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			exit("failed to write report: %v", err)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func exit(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
