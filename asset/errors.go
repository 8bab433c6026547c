// SPDX-License-Identifier: EPL-2.0

package asset

import "errors"

var (
	ErrEmpty         = errors.New("asset holds no samples")
	ErrManifest      = errors.New("invalid HRIR manifest")
	ErrChannelLayout = errors.New("HRIR file channels do not match manifest directions")
	ErrNotFound      = errors.New("asset file not found")
)
