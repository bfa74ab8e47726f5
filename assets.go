package main

import (
	"embed"
	"io/fs"
)

//go:embed static content
var embedded embed.FS

// Assets returns the static files and site content compiled into the binary.
func Assets() fs.FS {
	return embedded
}
