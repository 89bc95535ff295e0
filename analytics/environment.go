package analytics

import "sync"

// Storage is a minimal key/value store for persisted engine state. Durable
// implementations survive restarts (visitor identity, consent decision);
// browsing-period implementations are cleared when the browsing context ends
// (session keys). Implementations are best-effort: failures must be swallowed
// internally so the engine can degrade to in-memory state.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Click describes a click on an interactive element as reported by the host.
type Click struct {
	Element     string
	Text        string
	Href        string
	TargetID    string
	ClassName   string
	Interactive bool
}

// Field describes a form field gaining focus.
type Field struct {
	ID   string
	Type string
}

// FieldChange describes an input/change signal on a form field.
type FieldChange struct {
	ID       string
	Name     string
	HasValue bool
}

// PageError describes a host-page script error.
type PageError struct {
	Message string
	Source  string
	Line    int
}

// PageContext is a snapshot of the current navigation context.
type PageContext struct {
	URL              string
	Referrer         string
	Title            string
	UserAgent        string
	ScreenResolution string
	ViewportSize     string
	DoNotTrack       bool
}

// Environment abstracts the host runtime (browser DOM, desktop shell, test
// fake). Hooks register callbacks the host invokes on the matching raw
// signal; callbacks must be safe to call from the host's event dispatch.
type Environment interface {
	Page() PageContext

	OnScroll(fn func(percent int))
	OnClick(fn func(c Click))
	OnFieldFocus(fn func(f Field))
	OnFieldChange(fn func(f FieldChange))
	OnSubmit(fn func(formID string))
	OnVisibilityChange(fn func(hidden bool))
	OnUnload(fn func())
	OnError(fn func(e PageError))
}

// MemoryStorage is a map-backed Storage. It is the in-memory fallback when
// durable storage is unavailable, and the default test double.
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// SimulatedEnvironment is an Environment driven programmatically. Headless
// hosts (the tracker CLI) and tests use it to feed interaction signals into
// the engine.
type SimulatedEnvironment struct {
	mu   sync.Mutex
	page PageContext

	scroll     []func(int)
	click      []func(Click)
	focus      []func(Field)
	change     []func(FieldChange)
	submit     []func(string)
	visibility []func(bool)
	unload     []func()
	errs       []func(PageError)
}

// NewSimulatedEnvironment returns a SimulatedEnvironment for the given page.
func NewSimulatedEnvironment(page PageContext) *SimulatedEnvironment {
	return &SimulatedEnvironment{page: page}
}

// SetPage replaces the current page context (simulated navigation).
func (e *SimulatedEnvironment) SetPage(page PageContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page = page
}

func (e *SimulatedEnvironment) Page() PageContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

func (e *SimulatedEnvironment) OnScroll(fn func(int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scroll = append(e.scroll, fn)
}

func (e *SimulatedEnvironment) OnClick(fn func(Click)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.click = append(e.click, fn)
}

func (e *SimulatedEnvironment) OnFieldFocus(fn func(Field)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focus = append(e.focus, fn)
}

func (e *SimulatedEnvironment) OnFieldChange(fn func(FieldChange)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.change = append(e.change, fn)
}

func (e *SimulatedEnvironment) OnSubmit(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submit = append(e.submit, fn)
}

func (e *SimulatedEnvironment) OnVisibilityChange(fn func(bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visibility = append(e.visibility, fn)
}

func (e *SimulatedEnvironment) OnUnload(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unload = append(e.unload, fn)
}

func (e *SimulatedEnvironment) OnError(fn func(PageError)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, fn)
}

// Scroll simulates a scroll signal at the given depth percentage.
func (e *SimulatedEnvironment) Scroll(percent int) {
	for _, fn := range e.handlersScroll() {
		fn(percent)
	}
}

// Click simulates a click signal.
func (e *SimulatedEnvironment) Click(c Click) {
	e.mu.Lock()
	fns := append([]func(Click){}, e.click...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// FocusField simulates a form field gaining focus.
func (e *SimulatedEnvironment) FocusField(f Field) {
	e.mu.Lock()
	fns := append([]func(Field){}, e.focus...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(f)
	}
}

// ChangeField simulates an input/change signal on a form field.
func (e *SimulatedEnvironment) ChangeField(f FieldChange) {
	e.mu.Lock()
	fns := append([]func(FieldChange){}, e.change...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(f)
	}
}

// Submit simulates a form submission.
func (e *SimulatedEnvironment) Submit(formID string) {
	e.mu.Lock()
	fns := append([]func(string){}, e.submit...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(formID)
	}
}

// SetHidden simulates a visibility change.
func (e *SimulatedEnvironment) SetHidden(hidden bool) {
	e.mu.Lock()
	fns := append([]func(bool){}, e.visibility...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(hidden)
	}
}

// Unload simulates the page being torn down.
func (e *SimulatedEnvironment) Unload() {
	e.mu.Lock()
	fns := append([]func(){}, e.unload...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RaiseError simulates a host-page script error.
func (e *SimulatedEnvironment) RaiseError(pe PageError) {
	e.mu.Lock()
	fns := append([]func(PageError){}, e.errs...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(pe)
	}
}

func (e *SimulatedEnvironment) handlersScroll() []func(int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(int){}, e.scroll...)
}
