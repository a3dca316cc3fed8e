package processor

import (
	"context"
	"sync"

	checkout "github.com/payelement/checkout/go"
)

// ============================================================================
// Page
// ============================================================================

// Page records everything the checkout does to the page
type Page struct {
	mu        sync.Mutex
	regions   map[checkout.Region]bool
	blocked   map[checkout.Region]int
	visible   map[checkout.Region]bool
	content   map[checkout.Region]string
	errors    []string
	navigated []string
	history   []string
}

// NewPage creates a page holding the given regions
func NewPage(regions ...checkout.Region) *Page {
	p := &Page{
		regions: make(map[checkout.Region]bool),
		blocked: make(map[checkout.Region]int),
		visible: make(map[checkout.Region]bool),
		content: make(map[checkout.Region]string),
	}
	for _, r := range regions {
		p.regions[r] = true
	}
	return p
}

// NewCheckoutPage creates a page laid out like the checkout form
func NewCheckoutPage() *Page {
	return NewPage(checkout.RegionCheckoutForm, checkout.RegionElement, checkout.RegionPaymentBox, checkout.RegionPaymentSection)
}

func (p *Page) Block(region checkout.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked[region]++
}

func (p *Page) Unblock(region checkout.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blocked[region] > 0 {
		p.blocked[region]--
	}
}

func (p *Page) ShowError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, message)
}

func (p *Page) ReplaceContent(region checkout.Region, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content[region] = message
}

func (p *Page) SetVisible(region checkout.Region, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[region] = visible
}

func (p *Page) HasRegion(region checkout.Region) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regions[region]
}

func (p *Page) Navigate(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
}

func (p *Page) ReplaceHistory(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, url)
}

// Blocked reports whether the region is currently blocked
func (p *Page) Blocked(region checkout.Region) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocked[region] > 0
}

// Errors returns the messages shown so far
func (p *Page) Errors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.errors...)
}

// Navigated returns the URLs navigated to so far
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// History returns the history replacements so far
func (p *Page) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}

// Content returns the message that replaced the region, if any
func (p *Page) Content(region checkout.Region) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content[region]
}

// ============================================================================
// Fingerprinter
// ============================================================================

// Fingerprinter returns a fixed device fingerprint
type Fingerprinter string

func (f Fingerprinter) Fingerprint(ctx context.Context) (string, error) {
	return string(f), nil
}

var (
	_ checkout.Page          = (*Page)(nil)
	_ checkout.Fingerprinter = Fingerprinter("")
)
