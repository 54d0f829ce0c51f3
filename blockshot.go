// Package blockshot finds the block variants an authoring host lists in its
// library, generates visual regression tests for them and compares
// screenshots against recorded baselines.
//
// The work happens in the internal packages:
//
//   - catalog discovers variants through the library's shadow DOM.
//   - synth turns a catalog into a Go test file.
//   - capture and compare take and judge screenshots; vtest drives them
//     from generated tests.
//   - server is the single-instance test runner the in-page overlay talks to.
package blockshot

// Version is the blockshot release.
const Version = "0.1.0-dev"
