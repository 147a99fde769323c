package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "Remote mirror over gRPC (see verinews-casd)",
		Usage:       casregistry.UsageCLI,
		Options: []casregistry.Option{
			{Key: "target", Usage: "mirror daemon host:port"},
			{Key: "dial_timeout", Default: "5s", Usage: "dial timeout"},
			{Key: "timeout", Default: "0s", Usage: "per-RPC timeout; 0 disables"},
			{Key: "max_msg_bytes", Default: "0", Usage: "max message size in bytes; 0 uses grpc defaults"},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(settings["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpccas: missing target")
			}
			dialTimeout, err := time.ParseDuration(settings["dial_timeout"])
			if err != nil {
				return nil, nil, fmt.Errorf("grpccas: dial_timeout: %w", err)
			}
			timeout, err := time.ParseDuration(settings["timeout"])
			if err != nil {
				return nil, nil, fmt.Errorf("grpccas: timeout: %w", err)
			}
			maxMsg, err := strconv.Atoi(settings["max_msg_bytes"])
			if err != nil {
				return nil, nil, fmt.Errorf("grpccas: max_msg_bytes: %w", err)
			}
			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
