package casregistry

import "verinews.io/verify/storage"

func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "In-process CAS; contents are lost on exit",
		Usage:       UsageCLI | UsageDaemon,
		Open: func(map[string]string) (storage.CAS, func() error, error) {
			return storage.NewMemory(), nil, nil
		},
	})
}
