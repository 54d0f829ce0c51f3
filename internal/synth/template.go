package synth

const fileSource = `// Code generated by blockshot generate; DO NOT EDIT.

package {{.Package}}

import (
	"testing"
	"time"

	"github.com/livetemplate/blockshot/pkg/vtest"
)

var tolerance = vtest.Tolerance{
	MaxDiffPixels: {{.Tolerance.MaxDiffPixels}},
	Threshold: {{float .Tolerance.Threshold}},
	MaxDiffPixelRatio: {{float .Tolerance.MaxDiffPixelRatio}},
}

func TestMain(m *testing.M) {
	vtest.Main(m, vtest.Options{
		Host: {{quote .Host}},
		LibraryPath: {{quote .LibraryPath}},
		Plugin: {{quote .Plugin}},
		Baselines: {{quote .Baselines}},
		Report: {{quote .Report}},
		Width: {{.OuterWidth}},
		Height: {{.OuterHeight}},
		SelectorTimeout: {{duration .SelectorTimeout}},
{{- if .FrameChain}}
		FrameChain: []string{ {{- quoteAll .FrameChain -}} },
{{- end}}
	})
}

func TestVisual(t *testing.T) {
{{- range .Groups}}
	t.Run({{quote .Block}}, func(t *testing.T) {
		t.Parallel()
{{- range .Cases}}
		t.Run({{quote .Name}}, func(t *testing.T) {
			vtest.Run(t, vtest.Case{
				Path: {{quote .Path}},
				Index: {{.Index}},
				Block: {{quote .Block}},
				Label: {{quote .Label}},
				Width: {{.Width}},
				Height: {{.Height}},
				Settle: {{duration .Settle}},
				Baseline: {{quote .Baseline}},
				Tolerance: tolerance,
			})
		})
{{- end}}
	})
{{- end}}
}
`
