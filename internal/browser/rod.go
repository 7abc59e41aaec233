package browser

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
)

// RodLauncher launches headless Chromium via go-rod.
type RodLauncher struct {
	// Headless controls whether the browser runs without a UI. Default true.
	Headless bool
	// BinPath optionally pins the browser binary instead of the managed one.
	BinPath string
}

// NewRodLauncher returns a launcher with headless defaults.
func NewRodLauncher() *RodLauncher {
	return &RodLauncher{Headless: true}
}

// Launch starts a browser process and connects to it.
func (rl *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	l := launcher.New().
		Headless(rl.Headless).
		Set("disable-gpu").
		Set("no-first-run")
	if rl.BinPath != "" {
		l = l.Bin(rl.BinPath)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch chromium")
	}

	// ctx bounds the launch attempt only. The browser object lives until
	// Close, so it keeps its own background context; per-operation deadlines
	// are attached through the Context clones in NewPage and the page
	// methods. Binding the browser to ctx would turn Close into a no-op once
	// the acquiring task's context ends.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "browser: connect devtools")
	}

	return &rodBrowser{browser: b, launcher: l}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (rb *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := rb.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "browser: open page")
	}
	return &rodPage{page: p}, nil
}

func (rb *rodBrowser) Close() error {
	err := rb.browser.Close()
	rb.launcher.Cleanup()
	return eris.Wrap(err, "browser: close")
}

type rodPage struct {
	page *rod.Page
}

func (rp *rodPage) Navigate(ctx context.Context, url string) error {
	p := rp.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	if err := p.WaitLoad(); err != nil {
		return eris.Wrapf(err, "browser: wait load %s", url)
	}
	return nil
}

func (rp *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := rp.page.Context(ctx).HTML()
	if err != nil {
		return "", eris.Wrap(err, "browser: page html")
	}
	return html, nil
}

func (rp *rodPage) Eval(ctx context.Context, js string) (string, error) {
	obj, err := rp.page.Context(ctx).Eval(js)
	if err != nil {
		return "", eris.Wrap(err, "browser: eval")
	}
	return obj.Value.Str(), nil
}

func (rp *rodPage) Close() error {
	return rp.page.Close()
}
