package ipfs

import (
	"fmt"
	"os"
	"strconv"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "bin", Default: "ipfs", Usage: "ipfs binary"},
			{Key: "repo", Usage: "IPFS_PATH of the repository; empty uses the environment"},
			{Key: "pin", Default: "false", Usage: "Pin mirrored records (true or false)"},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			var env []string
			if repo := settings["repo"]; repo != "" {
				env = append(os.Environ(), "IPFS_PATH="+repo)
			}
			pin, err := strconv.ParseBool(settings["pin"])
			if err != nil {
				return nil, nil, fmt.Errorf("ipfs: invalid pin %q", settings["pin"])
			}
			return New(Options{Bin: settings["bin"], Env: env, Pin: pin}), nil, nil
		},
	})
}
