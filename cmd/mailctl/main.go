// Command mailctl is the operator CLI for the mail core: render templates,
// sign webhook payloads for local testing and send test messages.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
