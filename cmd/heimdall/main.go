// Package main is the entrypoint for the heimdall command line client.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ikaru5/heimdall-controller/internal/server"
)

const usage = `Usage: heimdall [command]
       heimdall send <receiver> [json]   Dispatch one package and print the routed answers.
       heimdall listen                   Route packages arriving on the COMMS inbox subject.

Commands:
  send <receiver> [json]  Dispatch the JSON payload (default {}) to receiver, e.g. Users.show.
  listen                  Connect to COMMS, publish routing events and serve /health and /metrics.
  help                    Show this message.

Environment: HEIMDALL_ORIGIN, HEIMDALL_HOST, HEIMDALL_PORT, HEIMDALL_PATH, HEIMDALL_PROTOCOL,
HEIMDALL_HANDLE_CSRF, HEIMDALL_REQUEST_TIMEOUT, HEIMDALL_BACKEND_VERSION, COMMS_URL, SERVICE_NAME,
HEIMDALL_INBOX_SUBJECT, HEIMDALL_OUTBOX_SUBJECT, HEIMDALL_EVENTS_SUBJECT, HEIMDALL_HTTP_ADDR, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "send":
		receiver, payload, err := sendArgs(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "heimdall send: %v\n%s", err, usage)
			os.Exit(1)
		}
		if err := server.Send(receiver, payload, os.Stdout); err != nil {
			log.Fatalf("heimdall send: %v", err)
		}
	case "listen":
		if err := server.Run(nil); err != nil {
			log.Fatalf("heimdall listen: %v", err)
		}
	case "help", "-h", "--help", "":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}
}

// sendArgs returns the receiver and the optional JSON payload of the send command.
func sendArgs(args []string) (string, string, error) {
	switch len(args) {
	case 1:
		return args[0], "", nil
	case 2:
		return args[0], args[1], nil
	default:
		return "", "", fmt.Errorf("expected <receiver> [json], got %d argument(s)", len(args))
	}
}
