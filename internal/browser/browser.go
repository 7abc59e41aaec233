// Package browser pools a small set of browser instances and hands out page
// handles under a concurrency ceiling. The automation engine is an opaque
// capability behind the Launcher/Browser/Page interfaces; the rod adapter is
// the production implementation.
package browser

import "context"

// Page is a single browser tab, exclusively owned by one task at a time.
type Page interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// HTML returns the current document serialized to HTML.
	HTML(ctx context.Context) (string, error)
	// Eval runs a JS function expression in the page and returns its result
	// serialized as a JSON string.
	Eval(ctx context.Context, js string) (string, error)
	// Close releases the tab.
	Close() error
}

// Browser is one running browser instance.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts browser instances. Implementations must be safe for
// concurrent use.
type Launcher interface {
	// Launch starts one browser. ctx bounds the launch attempt only; the
	// returned Browser must stay usable until its Close, regardless of ctx.
	Launch(ctx context.Context) (Browser, error)
}
