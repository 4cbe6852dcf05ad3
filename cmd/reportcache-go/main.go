package main

import "github.com/AtRiskMedia/reportcache-go/internal/cli"

func main() {
	cli.Execute()
}
