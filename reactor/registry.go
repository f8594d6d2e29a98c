// File: reactor/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Explicit descriptor-to-stage registry. The attachment travels through
// this map rather than through opaque user data smuggled into the poller.

package reactor

import (
	"sync"

	"github.com/momentics/hioload-reactor/pipeline"
)

// registry maps a registered descriptor to its owning head stage.
type registry struct {
	stages sync.Map // map[uintptr]*pipeline.HeadStage
}

func (r *registry) store(fd uintptr, stage *pipeline.HeadStage) {
	r.stages.Store(fd, stage)
}

func (r *registry) lookup(fd uintptr) (*pipeline.HeadStage, bool) {
	v, ok := r.stages.Load(fd)
	if !ok {
		return nil, false
	}
	return v.(*pipeline.HeadStage), true
}

func (r *registry) delete(fd uintptr) {
	r.stages.Delete(fd)
}

// each visits every registered stage.
func (r *registry) each(fn func(fd uintptr, stage *pipeline.HeadStage)) {
	r.stages.Range(func(k, v any) bool {
		fn(k.(uintptr), v.(*pipeline.HeadStage))
		return true
	})
}
