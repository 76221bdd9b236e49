package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
)

// DartSass compiles full Sass through an embedded Dart Sass process. The
// process is started on first use and restarted after it dies, so a missing
// or broken binary only degrades the stylesheet stage.
type DartSass struct {
	path    string
	timeout time.Duration

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewDartSass creates a compiler backed by the dart-sass binary at path.
func NewDartSass(path string, timeout time.Duration) *DartSass {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DartSass{path: path, timeout: timeout}
}

func (d *DartSass) Name() string { return "dartsass" }

func (d *DartSass) Compile(ctx context.Context, src, sourceName string) (string, error) {
	t, err := d.get()
	if err != nil {
		return "", err
	}

	result, err := t.Execute(godartsass.Args{
		Source:       src,
		URL:          "file://" + sourceName,
		OutputStyle:  godartsass.OutputStyleCompressed,
		SourceSyntax: godartsass.SourceSyntaxSCSS,
	})
	if err != nil {
		if !t.IsShutDown() {
			return "", err
		}
		d.reset(t)
		return "", fmt.Errorf("dart sass exited: %w", err)
	}
	return result.CSS, nil
}

func (d *DartSass) get() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler != nil {
		return d.transpiler, nil
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: d.path,
		Timeout:                  d.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("start dart sass: %w", err)
	}
	d.transpiler = t
	return t, nil
}

func (d *DartSass) reset(t *godartsass.Transpiler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler == t {
		d.transpiler = nil
	}
}

// Close stops the Dart Sass process if it is running.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}

var _ StyleCompiler = (*DartSass)(nil)
