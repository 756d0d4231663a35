package jsonrpc

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Descriptor identifies the member that handles a public method name.
type Descriptor struct {
	// Service is an opaque reference resolved by a Locator.
	Service string
	// Member is the name of the callable exposed by the service.
	Member string
}

func (d Descriptor) String() string {
	return d.Service + "::" + d.Member
}

// Registry maps public method names to descriptors. It is built once and
// never modified, so concurrent lookups need no locking.
type Registry struct {
	methods map[string]Descriptor
}

// NewRegistry creates a registry holding a copy of methods.
func NewRegistry(methods map[string]Descriptor) *Registry {
	m := make(map[string]Descriptor, len(methods))
	for name, d := range methods {
		m[name] = d
	}
	return &Registry{methods: m}
}

// RegistryFromConfig builds a registry from targets of the form
// "service::Member" or "service.Member", keyed by public method name.
func RegistryFromConfig(targets map[string]string) (*Registry, error) {
	methods := make(map[string]Descriptor, len(targets))
	for name, target := range targets {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("jsonrpc: empty method name for target %q", target)
		}
		d, err := ParseDescriptor(target)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: method %q: %w", name, err)
		}
		methods[name] = d
	}
	return &Registry{methods: methods}, nil
}

// ParseDescriptor parses "service::Member" or "service.Member". The last
// separator wins so service references may themselves contain dots.
func ParseDescriptor(target string) (Descriptor, error) {
	target = strings.TrimSpace(target)
	var service, member string
	if i := strings.LastIndex(target, "::"); i >= 0 {
		service, member = target[:i], target[i+2:]
	} else if i := strings.LastIndex(target, "."); i >= 0 {
		service, member = target[:i], target[i+1:]
	} else {
		return Descriptor{}, fmt.Errorf("invalid target %q: want service::Member", target)
	}
	if service == "" || member == "" {
		return Descriptor{}, fmt.Errorf("invalid target %q: want service::Member", target)
	}
	return Descriptor{Service: service, Member: member}, nil
}

// Resolve returns the descriptor registered for name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.methods[name]
	return d, ok
}

// Methods returns the registered public method names in sorted order.
func (r *Registry) Methods() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.methods)
}

// Member is a callable exposed by a service.
type Member interface {
	// Params returns the declared parameters, in positional order.
	Params() ParamSpec
	// Invoke calls the member with adapted positional arguments.
	// Returning a *Fault produces an application error response.
	Invoke(ctx context.Context, args Args) (any, error)
}

// Service exposes members by name.
type Service interface {
	Member(name string) (Member, bool)
}

// Locator resolves service references.
type Locator interface {
	Service(ref string) (Service, bool)
}

// Services is a map-backed Locator.
type Services map[string]Service

// Service implements Locator.
func (s Services) Service(ref string) (Service, bool) {
	svc, ok := s[ref]
	if !ok || svc == nil {
		return nil, false
	}
	return svc, true
}

// Members is a map-backed Service.
type Members map[string]Member

// Member implements Service.
func (m Members) Member(name string) (Member, bool) {
	mem, ok := m[name]
	if !ok || mem == nil {
		return nil, false
	}
	return mem, true
}

// Func returns a Member that calls fn with the adapted arguments. A nil fn
// yields a nil Member, which Members does not expose.
func Func(params ParamSpec, fn func(ctx context.Context, args Args) (any, error)) Member {
	if fn == nil {
		return nil
	}
	return &funcMember{params: params, fn: fn}
}

type funcMember struct {
	params ParamSpec
	fn     func(ctx context.Context, args Args) (any, error)
}

func (f *funcMember) Params() ParamSpec {
	return f.params
}

func (f *funcMember) Invoke(ctx context.Context, args Args) (any, error) {
	return f.fn(ctx, args)
}
