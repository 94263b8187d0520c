package meshsdk

import "sync"

// Handler is the user function a Descriptor is registered alongside. Its
// shape is deliberately opaque to the SDK: the pipeline only cares about
// the descriptor metadata, never about calling the handler itself.
type Handler any

type registration struct {
	desc    Descriptor
	handler Handler
}

var (
	mu            sync.Mutex
	registrations []registration
	processed     = map[string]bool{}
)

// Register declares a capability registration and its handler. It is the
// Go-native builder call in place of the decorator the original pipeline
// scanned for: call it once at process startup for every capability an
// agent exposes. Calling Register again with the same FunctionName is a
// no-op, since RunPipeline is idempotent per function name.
func Register(desc Descriptor, handler Handler) {
	mu.Lock()
	defer mu.Unlock()

	if desc.FunctionName == "" {
		desc.FunctionName = desc.AgentName
	}
	if processed[desc.FunctionName] {
		return
	}
	registrations = append(registrations, registration{desc: desc, handler: handler})
}

// pending returns every registration not yet processed by RunPipeline, and
// marks them processed so a second RunPipeline call in the same process is
// a no-op.
func pending() []registration {
	mu.Lock()
	defer mu.Unlock()

	var out []registration
	for _, r := range registrations {
		if processed[r.desc.FunctionName] {
			continue
		}
		processed[r.desc.FunctionName] = true
		out = append(out, r)
	}
	return out
}

// reset clears all registration state; used only by tests that need a
// clean process-local slate between cases.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	registrations = nil
	processed = map[string]bool{}
}
