package backends

import (
	"github.com/overcast-cloud/backendctl/pkg/backends/hitachi"
	"github.com/overcast-cloud/backendctl/pkg/backends/passthrough"
	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// builtin lists the backend types shipped with backendctl.
func builtin() []engine.Backend {
	return []engine.Backend{
		hitachi.New(),
		passthrough.New(),
	}
}
