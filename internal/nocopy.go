// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

// NoCopy is a sentinel used to prevent copying of synchronization primitives.
// Embed it in a struct and run `go vet` to catch accidental copies.
type NoCopy struct{}

func (*NoCopy) Lock()   {}
func (*NoCopy) Unlock() {}
