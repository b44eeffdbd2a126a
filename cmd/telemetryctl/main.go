package main

import "balance-telemetry/internal/cli"

func main() {
	cli.Execute()
}
