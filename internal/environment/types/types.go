package types

type EnvType int

const (
	EnvTypeUnknown EnvType = iota
	EnvTypeSecret
	EnvTypeDatabase
	EnvTypeConfig
	EnvTypeGenerated // Detected as generated (nanoid, uuid, random string)
	EnvTypeURL
	EnvTypeBoolean
	EnvTypeNumeric
	EnvTypeRuntime // one of the baked interpreter settings
)

func (t EnvType) String() string {
	switch t {
	case EnvTypeSecret:
		return "secret"
	case EnvTypeDatabase:
		return "database"
	case EnvTypeConfig:
		return "config"
	case EnvTypeGenerated:
		return "generated"
	case EnvTypeURL:
		return "url"
	case EnvTypeBoolean:
		return "boolean"
	case EnvTypeNumeric:
		return "numeric"
	case EnvTypeRuntime:
		return "runtime"
	}
	return "unknown"
}

// Origin says how a variable was found.
type Origin string

const (
	OriginBaked    Origin = "baked"    // assigned in the image definition
	OriginDeclared Origin = "declared" // listed with a value in an env or compose file
	OriginRequired Origin = "required" // read by code or passed through without a value
)

type EnvResult struct {
	VarName    string
	Value      string
	Type       EnvType
	Sensitive  bool
	Origin     Origin
	Source     string // e.g., "dockerfile:/path/to/Dockerfile"
	Confidence int
}
