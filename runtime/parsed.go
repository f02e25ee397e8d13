package runtime

import (
	"sync/atomic"

	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/internal/wasm"
)

// ParsedModule is a validated module binary bound to an Environment but not
// yet to a Runtime. It can be loaded into any Runtime of its environment,
// once.
type ParsedModule struct {
	env    *Environment
	meta   *wasm.Metadata
	token  *handle.Token
	data   []byte
	loaded atomic.Bool
}

// Name returns the module name from the name section, or "".
func (p *ParsedModule) Name() string {
	return p.meta.Name
}

// Exports describes the module's exports in declaration order.
func (p *ParsedModule) Exports() []Export {
	return describeExports(p.meta)
}

// Imports describes the module's imports in declaration order.
func (p *ParsedModule) Imports() []Import {
	return describeImports(p.meta, nil)
}

// Alive reports whether the parsed module can still be loaded.
func (p *ParsedModule) Alive() bool {
	return !p.loaded.Load() && p.token.Alive()
}

// Close frees a parsed module that was never loaded. Once loaded, the
// module belongs to its Runtime and Close does nothing.
func (p *ParsedModule) Close() {
	if !p.loaded.Load() {
		p.token.Kill()
	}
}
