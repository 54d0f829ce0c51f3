package catalog

import (
	"net/url"
	"strconv"
	"strings"
)

// LibraryURL is the library page listing every block.
func LibraryURL(host, libraryPath, plugin string) string {
	return join(host, libraryPath) + "?plugin=" + url.QueryEscape(plugin)
}

// RenderURL asks the renderer for one variant with the authoring chrome
// stripped (vtest=true).
func RenderURL(host, libraryPath, plugin, path string, index int) string {
	var b strings.Builder
	b.WriteString(join(host, libraryPath))
	b.WriteString("?plugin=")
	b.WriteString(url.QueryEscape(plugin))
	b.WriteString("&path=")
	b.WriteString(url.QueryEscape(path))
	b.WriteString("&index=")
	b.WriteString(strconv.Itoa(index))
	b.WriteString("&vtest=true")
	return b.String()
}

func join(host, path string) string {
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
}
