// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize = errors.New("dst size must be multiple of channels")
	ErrUnknownFormat  = errors.New("no decoder registered for format")
	ErrChannelCount   = errors.New("planar buffer count does not match channels")
)
