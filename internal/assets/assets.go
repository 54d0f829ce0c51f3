// Package assets embeds the in-page overlay and run-button scripts
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetOverlayJS returns the baseline overlay widget
func GetOverlayJS() ([]byte, error) {
	return clientFS.ReadFile("client/overlay.js")
}

// GetRunButtonJS returns the run-test button and report modal
func GetRunButtonJS() ([]byte, error) {
	return clientFS.ReadFile("client/runbutton.js")
}
