package main

import (
	"os"

	"github.com/sktmbtkr01/his-quasar-production/internal/exitcode"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.UsageError)
	}
}
