package main

import (
	"context"
	"fmt"
	"os"
	"strings"
)

func main() {
	ctx := context.Background()

	if err := RootCmd(ctx).Execute(); err != nil {
		if verboseLogging() {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// verboseLogging scans the raw argv for a debug/trace log level rather than
// re-parsing flags, since the error that triggers this may itself be a flag
// parse failure.
func verboseLogging() bool {
	for i, arg := range os.Args {
		var level string
		switch {
		case arg == "--log-level" && i+1 < len(os.Args):
			level = os.Args[i+1]
		case strings.HasPrefix(arg, "--log-level="):
			level = strings.TrimPrefix(arg, "--log-level=")
		default:
			continue
		}
		return level == "debug" || level == "trace"
	}
	return false
}
