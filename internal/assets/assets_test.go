package assets

import (
	"io/fs"
	"strings"
	"testing"
)

func TestGetOverlayJS(t *testing.T) {
	data, err := GetOverlayJS()
	if err != nil {
		t.Fatalf("GetOverlayJS failed: %v", err)
	}
	if !strings.Contains(string(data), "class VisualOverlay") {
		t.Error("overlay.js does not define VisualOverlay")
	}
}

func TestGetRunButtonJS(t *testing.T) {
	data, err := GetRunButtonJS()
	if err != nil {
		t.Fatalf("GetRunButtonJS failed: %v", err)
	}
	for _, want := range []string{"Test Server is running", "Server is not running", "/api/run-visual-test"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("runbutton.js missing %q", want)
		}
	}
}

func TestClientFS(t *testing.T) {
	for _, name := range []string{"overlay.js", "runbutton.js"} {
		if _, err := fs.Stat(ClientFS(), name); err != nil {
			t.Errorf("ClientFS missing %s: %v", name, err)
		}
	}
}
