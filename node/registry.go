// SPDX-License-Identifier: EPL-2.0

package node

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/ik5/framebridge/codec/ambidec"
	"github.com/ik5/framebridge/codec/binaural"
	"github.com/ik5/framebridge/codec/doa"
	"github.com/ik5/framebridge/codec/panner"
	"github.com/ik5/framebridge/internal/config"
)

// Constructor builds a node from its configuration.
type Constructor func(cfg config.NodeConfig, env Env) (Node, error)

// Info describes a registered kind.
type Info struct {
	Kind      config.Kind
	FrameSize int
	// Channels is a short human description of the channel rules.
	Channels  string
	New       Constructor
}

// Registry maps node kinds to constructors.
type Registry struct {
	mtx   sync.RWMutex
	kinds map[config.Kind]Info
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[config.Kind]Info)}
}

// Register binds info.Kind, replacing any previous binding.
func (r *Registry) Register(info Info) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.kinds[info.Kind] = info
}

func (r *Registry) Get(kind config.Kind) (Info, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	info, ok := r.kinds[kind]
	return info, ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []Info {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	out := make([]Info, 0, len(r.kinds))
	for _, info := range r.kinds {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.Kind, b.Kind) })
	return out
}

// New builds the node cfg describes.
func (r *Registry) New(cfg config.NodeConfig, env Env) (Node, error) {
	info, ok := r.Get(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	return info.New(cfg, env)
}

// Default holds the four built-in kinds.
var Default = newDefault()

func newDefault() *Registry {
	r := NewRegistry()
	r.Register(Info{
		Kind:      config.KindBinaural,
		FrameSize: binaural.FrameSize,
		Channels:  "(order+1)^2 in, order 1-7; 2 out",
		New:       func(cfg config.NodeConfig, env Env) (Node, error) { return NewBinaural(cfg.Name, cfg.Binaural, env) },
	})
	r.Register(Info{
		Kind:      config.KindDecoder,
		FrameSize: ambidec.FrameSize,
		Channels:  "(order+1)^2 in; one out per loudspeaker, or 2 binaural",
		New:       func(cfg config.NodeConfig, env Env) (Node, error) { return NewDecoder(cfg.Name, cfg.Decoder, env) },
	})
	r.Register(Info{
		Kind:      config.KindPanner,
		FrameSize: panner.FrameSize,
		Channels:  "1-64 sources in; 2-64 loudspeakers out",
		New:       func(cfg config.NodeConfig, env Env) (Node, error) { return NewPanner(cfg.Name, cfg.Panner, env) },
	})
	r.Register(Info{
		Kind:      config.KindDOA,
		FrameSize: doa.FrameSize,
		Channels:  "(order+1)^2 in, order 1-7; no audio out",
		New:       func(cfg config.NodeConfig, env Env) (Node, error) { return NewDOA(cfg.Name, cfg.DOA, env) },
	})
	return r
}
