package modules

import (
	_ "embed"
)

//go:embed api.ts
var apiSource []byte

// APISource returns the TypeScript source of the injected host API module.
func APISource() []byte {
	return apiSource
}
