// SPDX-License-Identifier: EPL-2.0

package wav

import "errors"

var (
	ErrNotWavFile            = errors.New("not a WAV file")
	ErrUnsupportedWavFormat  = errors.New("only integer PCM WAV is supported")
	ErrUnsupportedBitDepth   = errors.New("unsupported WAV bit depth")
	ErrUnsupportedWavChannel = errors.New("unsupported WAV channel count")
)
