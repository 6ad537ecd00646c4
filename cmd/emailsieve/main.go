package main

import (
	"os"

	"github.com/bigcats-cc/email-sieve/cmd/emailsieve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
