// SPDX-License-Identifier: EPL-2.0

// Package audiotest provides sources, codecs and allocators for tests.
//
// Nothing here imports the packages under test, so both audio and frame
// tests can use it.
package audiotest
