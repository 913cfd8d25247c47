// Package assets bundles the short prerecorded audio clips played at
// pipeline checkpoints.
package assets

import _ "embed"

//go:embed checkpoint.wav
var checkpoint []byte

// Checkpoint returns the chime played once validation completes, as a 16 kHz
// 16-bit mono WAV. Callers must not mutate the returned slice.
func Checkpoint() []byte { return checkpoint }
