package types

// Process is a long-running command a project declares for deployment.
type Process struct {
	Name    string
	Command []string
	Network Network

	Configs []ConfigRef
}

type Network int

const (
	NetworkNone    Network = iota // outbound only, e.g. a polling bot
	NetworkPrivate                // service-to-service only
	NetworkPublic                 // internet-facing
)

func (n Network) String() string {
	switch n {
	case NetworkNone:
		return "none"
	case NetworkPrivate:
		return "private"
	case NetworkPublic:
		return "public"
	default:
		return "unknown"
	}
}

type ConfigRef struct {
	Type string // "procfile", "railway", "dockerfile"
	Path string
}
