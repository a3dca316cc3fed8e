package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// mockClient is a scripted PaymentServiceClient that counts calls
type mockClient struct {
	mu sync.Mutex

	createIntent    func(ctx context.Context, fp Fingerprint, orderID string) (*Intent, error)
	initSetupIntent func(ctx context.Context) (*Intent, error)
	updateIntent    func(ctx context.Context, req UpdateIntentRequest) (*UpdateIntentResponse, error)
	confirm         func(ctx context.Context, params ConfirmParams, secret string) (*ConfirmResult, error)
	confirmSetup    func(ctx context.Context, params ConfirmParams) (*ConfirmResult, error)
	confirmPending  func(ctx context.Context, pending PendingAuthentication) (string, error)
	elementsErr     error

	createCalls       int
	setupCalls        int
	updateCalls       int
	confirmCalls      int
	confirmSetupCalls int
	pendingCalls      int
	loggedCharges     []string
	confirmSecrets    []string
	lastUpdate        UpdateIntentRequest
	lastConfirm       ConfirmParams
	lastPending       PendingAuthentication
	elements          *mockElements
}

func newMockClient() *mockClient {
	return &mockClient{}
}

func (m *mockClient) CreateIntent(ctx context.Context, fp Fingerprint, orderID string) (*Intent, error) {
	m.mu.Lock()
	m.createCalls++
	n := m.createCalls
	m.mu.Unlock()
	if m.createIntent != nil {
		return m.createIntent(ctx, fp, orderID)
	}
	id := fmt.Sprintf("pi_%d", n)
	return &Intent{ID: id, ClientSecret: id + "_secret_test", Status: StatusRequiresPaymentMethod}, nil
}

func (m *mockClient) InitSetupIntent(ctx context.Context) (*Intent, error) {
	m.mu.Lock()
	m.setupCalls++
	m.mu.Unlock()
	if m.initSetupIntent != nil {
		return m.initSetupIntent(ctx)
	}
	return &Intent{ID: "seti_1", ClientSecret: "seti_1_secret_test"}, nil
}

func (m *mockClient) UpdateIntent(ctx context.Context, req UpdateIntentRequest) (*UpdateIntentResponse, error) {
	m.mu.Lock()
	m.updateCalls++
	m.lastUpdate = req
	m.mu.Unlock()
	if m.updateIntent != nil {
		return m.updateIntent(ctx, req)
	}
	return &UpdateIntentResponse{RedirectURL: "https://store.test/order-received/1"}, nil
}

func (m *mockClient) Confirm(ctx context.Context, elements Elements, params ConfirmParams, secret string) (*ConfirmResult, error) {
	m.mu.Lock()
	m.confirmCalls++
	m.lastConfirm = params
	m.confirmSecrets = append(m.confirmSecrets, secret)
	m.mu.Unlock()
	if m.confirm != nil {
		return m.confirm(ctx, params, secret)
	}
	if secret == "" {
		return nil, &ProcessorError{Message: "Your card number is incomplete.", Code: "incomplete_number", Type: "validation_error"}
	}
	return &ConfirmResult{Status: StatusSucceeded}, nil
}

func (m *mockClient) ConfirmSetup(ctx context.Context, elements Elements, params ConfirmParams) (*ConfirmResult, error) {
	m.mu.Lock()
	m.confirmSetupCalls++
	m.lastConfirm = params
	m.mu.Unlock()
	if m.confirmSetup != nil {
		return m.confirmSetup(ctx, params)
	}
	return &ConfirmResult{Status: StatusSucceeded}, nil
}

func (m *mockClient) ConfirmPendingAuthentication(ctx context.Context, pending PendingAuthentication) (string, error) {
	m.mu.Lock()
	m.pendingCalls++
	m.lastPending = pending
	m.mu.Unlock()
	if m.confirmPending != nil {
		return m.confirmPending(ctx, pending)
	}
	return "https://store.test/order-received/" + pending.OrderID, nil
}

func (m *mockClient) LogError(ctx context.Context, chargeRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedCharges = append(m.loggedCharges, chargeRef)
	return nil
}

func (m *mockClient) Elements(ctx context.Context, clientSecret string) (Elements, error) {
	if m.elementsErr != nil {
		return nil, m.elementsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.elements == nil {
		m.elements = &mockElements{}
	}
	m.elements.secret = clientSecret
	return m.elements, nil
}

func (m *mockClient) counts() (create, update, confirm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.updateCalls, m.confirmCalls
}

type mockElements struct {
	mu      sync.Mutex
	secret  string
	created []*mockElement
}

func (e *mockElements) Create(opts ElementOptions) (Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el := &mockElement{options: opts}
	e.created = append(e.created, el)
	return el, nil
}

func (e *mockElements) ClientSecret() string { return e.secret }

func (e *mockElements) PaymentMethod() string { return "pm_card_visa" }

type mockElement struct {
	mu       sync.Mutex
	options  ElementOptions
	mounts   []Region
	unmounts int
	updates  []ElementOptions
	onChange func(ElementChange)
}

func (e *mockElement) Mount(container Region) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mounts = append(e.mounts, container)
	return nil
}

func (e *mockElement) Unmount() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unmounts++
	return nil
}

func (e *mockElement) Update(opts ElementOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, opts)
	return nil
}

func (e *mockElement) OnChange(handler func(ElementChange)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = handler
}

// emit simulates the shopper editing the element
func (e *mockElement) emit(change ElementChange) {
	e.mu.Lock()
	handler := e.onChange
	e.mu.Unlock()
	if handler != nil {
		handler(change)
	}
}

// mockPage records what the checkout did to the page
type mockPage struct {
	mu        sync.Mutex
	regions   map[Region]bool
	blocked   map[Region]int
	visible   map[Region]bool
	content   map[Region]string
	errors    []string
	navigated []string
	history   []string
}

func newMockPage() *mockPage {
	return &mockPage{
		regions: map[Region]bool{RegionElement: true},
		blocked: make(map[Region]int),
		visible: make(map[Region]bool),
		content: make(map[Region]string),
	}
}

func (p *mockPage) Block(region Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked[region]++
}

func (p *mockPage) Unblock(region Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blocked[region] > 0 {
		p.blocked[region]--
	}
}

func (p *mockPage) ShowError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, message)
}

func (p *mockPage) ReplaceContent(region Region, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content[region] = message
}

func (p *mockPage) SetVisible(region Region, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[region] = visible
}

func (p *mockPage) HasRegion(region Region) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regions[region]
}

func (p *mockPage) Navigate(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
}

func (p *mockPage) ReplaceHistory(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, url)
}

func (p *mockPage) isBlocked(region Region) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocked[region] > 0
}

func (p *mockPage) lastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errors) == 0 {
		return ""
	}
	return p.errors[len(p.errors)-1]
}

type mockFingerprinter struct {
	id    string
	err   error
	calls int
}

func (f *mockFingerprinter) Fingerprint(ctx context.Context) (string, error) {
	f.calls++
	return f.id, f.err
}

// memRegistry is a RateLimitRegistry with a fixed window
type memRegistry struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	counts  map[string]int
	started map[string]time.Time
	err     error
}

func newMemRegistry(window time.Duration) *memRegistry {
	return &memRegistry{
		window:  window,
		now:     time.Now,
		counts:  make(map[string]int),
		started: make(map[string]time.Time),
	}
}

func (r *memRegistry) Attempts(ctx context.Context, session string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	if r.now().Sub(r.started[session]) > r.window {
		return 0, nil
	}
	return r.counts[session], nil
}

func (r *memRegistry) RecordDecline(ctx context.Context, session string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	if r.now().Sub(r.started[session]) > r.window {
		r.counts[session] = 0
		r.started[session] = r.now()
	}
	r.counts[session]++
	return r.counts[session], nil
}

func (r *memRegistry) Reset(ctx context.Context, session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, session)
	delete(r.started, session)
	return nil
}

func (r *memRegistry) count(session string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[session]
}

// newMountedController returns a controller whose element is mounted and
// complete with the given sub-method.
func newMountedController(client *mockClient, page *mockPage, method string, opts ...ControllerOption) (*ElementController, *mockElement) {
	opts = append([]ControllerOption{
		WithFingerprinter(&mockFingerprinter{id: "visitor-1"}),
		WithCartFingerprint("cart1"),
		WithPaymentMethods(
			PaymentMethodConfig{Type: "card", IsReusable: true},
			PaymentMethodConfig{Type: DeferredPaymentMethod},
			PaymentMethodConfig{Type: "giropay"},
		),
	}, opts...)
	c := NewElementController(client, page, NewMemorySession(), opts...)
	if err := c.Create(context.Background()); err != nil {
		panic(err)
	}
	el := client.elements.created[len(client.elements.created)-1]
	el.emit(ElementChange{Type: method, Country: "US", Complete: true})
	return c, el
}
