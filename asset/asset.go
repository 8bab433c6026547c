// SPDX-License-Identifier: EPL-2.0

// Package asset loads the coefficient sets codecs need during expensive
// initialization: impulse responses decoded from any registered audio
// format and resampled to the engine rate.
package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ik5/framebridge/audio"
)

// Set is a decoded multichannel impulse response.
type Set struct {
	SampleRate int
	Channels   [][]float32
}

// Frames is the length of the shortest channel.
func (s *Set) Frames() int {
	if len(s.Channels) == 0 {
		return 0
	}
	n := len(s.Channels[0])
	for _, ch := range s.Channels[1:] {
		n = min(n, len(ch))
	}
	return n
}

// Load decodes path with reg and resamples it to rate. A rate of zero keeps
// the file's own rate.
func Load(reg *audio.Registry, path string, rate int) (*Set, error) {
	if err := Exists(path); err != nil {
		return nil, err
	}

	src, err := reg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}

	if rate > 0 && src.SampleRate() != rate {
		src = audio.NewResampler(src, rate)
	}
	defer src.Close()

	data, err := audio.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", path, err)
	}

	set := &Set{SampleRate: src.SampleRate(), Channels: data}
	if set.Frames() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	return set, nil
}

// Exists reports ErrNotFound when path is missing or a directory.
func Exists(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("stat asset %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return nil
}

// Loader caches HRIR sets by path and rate. Concurrent loads of the same
// key share one decode. It is safe for concurrent use.
type Loader struct {
	reg   *audio.Registry
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*HRIRSet
}

func NewLoader(reg *audio.Registry) *Loader {
	return &Loader{reg: reg, cache: make(map[string]*HRIRSet)}
}

// HRIRs returns the set described by the manifest at path, resampled to
// rate. Callers must not modify the result.
func (l *Loader) HRIRs(path string, rate int) (*HRIRSet, error) {
	key := path + "@" + strconv.Itoa(rate)

	l.mu.Lock()
	if set, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return set, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do(key, func() (any, error) {
		set, err := LoadHRIRs(l.reg, path, rate)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.cache[key] = set
		l.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*HRIRSet), nil
}

// Forget drops every cached entry for path, so the next load re-reads it.
func (l *Loader) Forget(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key := range l.cache {
		if len(key) > len(path) && key[:len(path)] == path && key[len(path)] == '@' {
			delete(l.cache, key)
		}
	}
}
