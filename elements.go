package checkout

import (
	"slices"
	"sync"
)

// TokenElements is an element group for headless checkouts, where the
// payment method was tokenized by the processor before the request reached
// the store. It carries the token in place of a rendered form.
type TokenElements struct {
	mu            sync.Mutex
	clientSecret  string
	paymentMethod string
	elements      []*TokenElement
}

// NewTokenElements creates an element group bound to clientSecret. An empty
// paymentMethod means the shopper has not completed the form.
func NewTokenElements(clientSecret, paymentMethod string) *TokenElements {
	return &TokenElements{clientSecret: clientSecret, paymentMethod: paymentMethod}
}

func (e *TokenElements) Create(opts ElementOptions) (Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el := &TokenElement{group: e, opts: opts}
	e.elements = append(e.elements, el)
	return el, nil
}

func (e *TokenElements) ClientSecret() string {
	return e.clientSecret
}

func (e *TokenElements) PaymentMethod() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paymentMethod
}

// Complete records the tokenized payment method and notifies every element
func (e *TokenElements) Complete(paymentMethod, methodType, country string) {
	e.mu.Lock()
	e.paymentMethod = paymentMethod
	elements := append([]*TokenElement(nil), e.elements...)
	e.mu.Unlock()

	change := ElementChange{Type: methodType, Country: country, Complete: paymentMethod != ""}
	for _, el := range elements {
		el.emit(change)
	}
}

// TokenElement is a headless element of a TokenElements group
type TokenElement struct {
	group *TokenElements

	mu       sync.Mutex
	opts     ElementOptions
	mounted  Region
	handlers []func(ElementChange)
}

func (el *TokenElement) Mount(container Region) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.mounted = container
	return nil
}

func (el *TokenElement) Unmount() error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.mounted = ""
	return nil
}

func (el *TokenElement) Update(opts ElementOptions) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.opts = opts
	return nil
}

func (el *TokenElement) OnChange(handler func(ElementChange)) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.handlers = append(el.handlers, handler)
}

// Options returns the options last applied to the element
func (el *TokenElement) Options() ElementOptions {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.opts
}

// Mounted returns the container the element is mounted in, or ""
func (el *TokenElement) Mounted() Region {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.mounted
}

func (el *TokenElement) emit(change ElementChange) {
	el.mu.Lock()
	handlers := slices.Clone(el.handlers)
	el.mu.Unlock()
	for _, h := range handlers {
		h(change)
	}
}
