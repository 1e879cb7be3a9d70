package constant

// Set via -ldflags at release build time.
var (
	Version     = "dev"
	CompileTime = "unknown"
)
