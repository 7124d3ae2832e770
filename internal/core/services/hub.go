package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Ensure Hub implements the interface.
var _ driving.Hub = (*Hub)(nil)

const tracerName = "github.com/custodia-labs/caseflow/internal/core/services"

// DefaultHubWorkers bounds concurrently running MayBlock actions.
const DefaultHubWorkers = 8

// Hub is the module registry and action dispatcher.
// A single Hub is constructed at start-up and injected wherever modules are
// registered or invoked.
//
// A handler that outlives its timeout receives a cancelled context. Work that
// ignores the cancellation keeps running detached; for MayBlock actions it
// keeps its worker slot until it returns.
type Hub struct {
	mu        sync.RWMutex
	modules   map[string]*registeredModule
	providers map[string]driving.ContextProvider

	pool   *semaphore.Weighted
	tracer trace.Tracer
	now    func() time.Time
}

type registeredModule struct {
	desc    domain.ModuleDescriptor
	actions map[string]driving.Action
}

// NewHub creates a hub whose blocking actions share a pool of worker slots.
func NewHub(workers int) *Hub {
	if workers <= 0 {
		workers = DefaultHubWorkers
	}
	h := &Hub{
		modules:   make(map[string]*registeredModule),
		providers: make(map[string]driving.ContextProvider),
		pool:      semaphore.NewWeighted(int64(workers)),
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
	h.registerBuiltinProviders()
	return h
}

// RegisterContextProvider makes key available to actions that declare it in
// RequiresContext. Registering a key twice replaces the provider.
func (h *Hub) RegisterContextProvider(key string, provider driving.ContextProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providers[key] = provider
}

func (h *Hub) registerBuiltinProviders() {
	h.providers[domain.ContextUserID] = func(_ context.Context, userID string) (any, error) {
		if userID == "" {
			return nil, domain.NewError(domain.KindValidation, "user id is required")
		}
		return userID, nil
	}
	h.providers[domain.ContextProvider] = func(_ context.Context, userID string) (any, error) {
		provider, _, _, err := domain.ParseUserID(userID)
		return provider, err
	}
	h.providers[domain.ContextRole] = func(_ context.Context, userID string) (any, error) {
		_, role, _, err := domain.ParseUserID(userID)
		return role, err
	}
	h.providers[domain.ContextNow] = func(context.Context, string) (any, error) {
		return h.now(), nil
	}
	h.providers[domain.ContextRequestID] = func(context.Context, string) (any, error) {
		return uuid.NewString(), nil
	}
}

// Register adds a module, or replaces the action set of an existing one.
func (h *Hub) Register(desc domain.ModuleDescriptor, actions []driving.Action) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	set := make(map[string]driving.Action, len(actions))
	for _, a := range actions {
		if err := a.Descriptor.Validate(); err != nil {
			return fmt.Errorf("module %s: %w", desc.Name, err)
		}
		if a.Handler == nil {
			return fmt.Errorf("%w: module %s action %s has no handler", domain.ErrValidation, desc.Name, a.Descriptor.Name)
		}
		if _, dup := set[a.Descriptor.Name]; dup {
			return fmt.Errorf("%w: module %s declares action %s twice", domain.ErrValidation, desc.Name, a.Descriptor.Name)
		}
		set[a.Descriptor.Name] = driving.Action{Descriptor: a.Descriptor.Clone(), Handler: a.Handler}
	}

	h.mu.Lock()
	_, replaced := h.modules[desc.Name]
	h.modules[desc.Name] = &registeredModule{desc: desc.Clone(), actions: set}
	h.mu.Unlock()

	if replaced {
		logger.Debug("hub: replaced module %s (%d actions)", desc.Name, len(set))
	} else {
		logger.Debug("hub: registered module %s (%d actions)", desc.Name, len(set))
	}
	return nil
}

// Invoke validates and executes module.action. Every outcome, including
// handler panics and timeouts, is returned as a Result.
func (h *Hub) Invoke(ctx context.Context, module, action, userID string, params map[string]any) driving.Result {
	ctx, span := h.tracer.Start(ctx, "hub.invoke", trace.WithAttributes(
		attribute.String("caseflow.module", module),
		attribute.String("caseflow.action", action),
	))
	defer span.End()

	res := h.invoke(ctx, module, action, userID, params)
	if !res.OK {
		span.SetStatus(codes.Error, string(res.Error.Kind))
		logger.Debug("hub: %s.%s failed: %s: %s", module, action, res.Error.Kind, res.Error.Message)
	}
	return res
}

func (h *Hub) invoke(ctx context.Context, module, action, userID string, params map[string]any) driving.Result {
	h.mu.RLock()
	mod, ok := h.modules[module]
	var act driving.Action
	if ok {
		act, ok = mod.actions[action]
	}
	h.mu.RUnlock()
	if mod == nil {
		return driving.Failure(domain.NewError(domain.KindNotFound, "unknown module %q", module))
	}
	if !ok {
		return driving.Failure(domain.NewError(domain.KindNotFound, "module %q has no action %q", module, action))
	}
	desc := act.Descriptor

	if err := checkParams(desc, params); err != nil {
		return driving.Failure(err)
	}

	actx, err := h.assembleContext(ctx, desc, userID)
	if err != nil {
		return driving.Failure(err)
	}

	data, err := h.execute(ctx, desc, act.Handler, actx, copyParams(params))
	if err != nil {
		return driving.Failure(err)
	}
	if err := checkProduces(desc, data); err != nil {
		return driving.Failure(err)
	}
	return driving.Result{OK: true, Data: data}
}

func checkParams(desc domain.ActionDescriptor, params map[string]any) error {
	var missing []string
	for _, name := range desc.RequiredParams {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return domain.NewError(domain.KindValidation, "missing required params: %s", strings.Join(missing, ", "))
	}
	var unknown []string
	for name := range params {
		if !desc.Declares(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return domain.NewError(domain.KindValidation, "undeclared params: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// assembleContext resolves exactly the keys the action declared.
func (h *Hub) assembleContext(ctx context.Context, desc domain.ActionDescriptor, userID string) (driving.ActionContext, error) {
	actx := make(driving.ActionContext, len(desc.RequiresContext))
	for _, key := range desc.RequiresContext {
		h.mu.RLock()
		provider, ok := h.providers[key]
		h.mu.RUnlock()
		if !ok {
			return nil, domain.NewError(domain.KindValidation, "no provider for context key %q", key)
		}
		v, err := provider(ctx, userID)
		if err != nil {
			return nil, domain.Classify(fmt.Errorf("context %s: %w", key, err))
		}
		actx[key] = v
	}
	return actx, nil
}

type outcome struct {
	data map[string]any
	err  error
}

func (h *Hub) execute(
	ctx context.Context,
	desc domain.ActionDescriptor,
	handler driving.ActionHandler,
	actx driving.ActionContext,
	params map[string]any,
) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	// Non-blocking handlers run on the caller's goroutine. One that overruns
	// its deadline is still reported as timed out once it returns.
	if !desc.MayBlock {
		data, err := call(ctx, desc, handler, actx, params)
		if ctx.Err() != nil {
			return nil, deadlineError(ctx, desc)
		}
		return data, err
	}

	if err := h.pool.Acquire(ctx, 1); err != nil {
		return nil, deadlineError(ctx, desc)
	}
	done := make(chan outcome, 1)
	go func() {
		defer h.pool.Release(1)
		data, err := call(ctx, desc, handler, actx, params)
		done <- outcome{data: data, err: err}
	}()

	// A blocking handler that ignores ctx keeps its pool slot until it
	// returns, but the caller is answered at the deadline.
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil && errors.Is(out.err, ctx.Err()) {
			return nil, deadlineError(ctx, desc)
		}
		return out.data, out.err
	case <-ctx.Done():
		return nil, deadlineError(ctx, desc)
	}
}

// call runs handler, converting a panic into a PermanentError.
func call(
	ctx context.Context,
	desc domain.ActionDescriptor,
	handler driving.ActionHandler,
	actx driving.ActionContext,
	params map[string]any,
) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hub: action %s panicked: %v\n%s", desc.Name, r, debug.Stack())
			data, err = nil, domain.NewError(domain.KindPermanent, "action %s panicked: %v", desc.Name, r)
		}
	}()
	return handler(ctx, actx, params)
}

func deadlineError(ctx context.Context, desc domain.ActionDescriptor) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, "action %s exceeded %s", desc.Name, desc.Timeout)
	}
	return domain.WrapError(domain.KindPermanent, ctx.Err(), "action "+desc.Name+" cancelled")
}

// checkProduces enforces that a successful result carries exactly the
// declared keys.
func checkProduces(desc domain.ActionDescriptor, data map[string]any) error {
	if len(data) != len(desc.Produces) {
		return contractViolation(desc, data)
	}
	for _, key := range desc.Produces {
		if _, ok := data[key]; !ok {
			return contractViolation(desc, data)
		}
	}
	return nil
}

func contractViolation(desc domain.ActionDescriptor, data map[string]any) error {
	got := make([]string, 0, len(data))
	for k := range data {
		got = append(got, k)
	}
	sort.Strings(got)
	return domain.NewError(domain.KindValidation, "contract violation: action %s produced [%s], declared [%s]",
		desc.Name, strings.Join(got, ", "), strings.Join(desc.Produces, ", "))
}

func copyParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// Modules lists registered modules sorted by name.
func (h *Hub) Modules() []domain.ModuleDescriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.ModuleDescriptor, 0, len(h.modules))
	for _, m := range h.modules {
		out = append(out, m.desc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Describe returns a module's descriptor and its actions sorted by name.
func (h *Hub) Describe(module string) (domain.ModuleDescriptor, []domain.ActionDescriptor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.modules[module]
	if !ok {
		return domain.ModuleDescriptor{}, nil, domain.NewError(domain.KindNotFound, "unknown module %q", module)
	}
	actions := make([]domain.ActionDescriptor, 0, len(m.actions))
	for _, a := range m.actions {
		actions = append(actions, a.Descriptor.Clone())
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	return m.desc.Clone(), actions, nil
}

// StartupOrder returns module names with every dependency ahead of its
// dependents. Ties are broken by name.
func (h *Hub) StartupOrder() ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	indegree := make(map[string]int, len(h.modules))
	dependents := make(map[string][]string)
	for name, m := range h.modules {
		indegree[name] += 0
		for _, dep := range m.desc.DependsOn {
			if _, ok := h.modules[dep]; !ok {
				return nil, domain.NewError(domain.KindValidation, "module %s depends on unregistered module %s", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(indegree) {
		return nil, domain.NewError(domain.KindValidation, "module dependency cycle")
	}
	return order, nil
}
