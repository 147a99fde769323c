package casregistry

// Usage restricts which programs accept a backend. Backends are linked at
// build time: a package registers itself in init() and a binary enables it
// with a blank import.
type Usage uint8

const (
	// UsageCLI marks backends for the verinews command.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends the verinews-casd mirror daemon can serve.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
