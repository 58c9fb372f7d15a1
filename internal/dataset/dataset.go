// Package dataset embeds the default network: the 25 hub stations of the
// Indian railway trunk network and the twelve corridor templates joining them.
package dataset

import (
	"embed"
	"io/fs"
)

//go:embed data/*.csv
var files embed.FS

// FS returns the embedded dataset rooted at its data directory.
func FS() fs.FS {
	sub, err := fs.Sub(files, "data")
	if err != nil {
		panic(err)
	}
	return sub
}
