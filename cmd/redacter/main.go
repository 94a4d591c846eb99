package main

import (
	"os"

	"github.com/redacter-man/pii-redacter/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
