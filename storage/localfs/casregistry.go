package localfs

import (
	"fmt"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "dir", Usage: "directory holding mirrored records"},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			dir := settings["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
