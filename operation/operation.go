// Package operation defines the immutable description of one CA
// invocation: which method, over which hosts, with which options.
package operation

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jmcleod/ironca/ca"
)

// Format selects how list output is rendered.
type Format int

const (
	Machine Format = iota
	Human
)

func (f Format) String() string {
	if f == Human {
		return "human"
	}
	return "machine"
}

// ParseFormat resolves a format name; empty means Machine.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "machine":
		return Machine, nil
	case "human":
		return Human, nil
	default:
		return 0, fmt.Errorf("%w: invalid format %q (expected machine or human)", ca.ErrInvalidOperation, name)
	}
}

// Section is a part of a host's report that can be switched on or off.
type Section string

const (
	SectionAttrs       Section = "attrs"
	SectionExts        Section = "exts"
	SectionFingerprint Section = "fingerprint"
	SectionBase        Section = "base"
)

// DefaultSections are shown when no output sections are configured.
var DefaultSections = []Section{SectionAttrs, SectionExts, SectionFingerprint}

var knownSections = map[Section]bool{
	SectionAttrs:       true,
	SectionExts:        true,
	SectionFingerprint: true,
	SectionBase:        true,
}

// Options are the raw inputs to New.
type Options struct {
	Digest           string
	Format           string
	Interactive      bool
	AssumeYes        bool
	AllowDNSAltNames bool
	Output           []string
	Generate         ca.GenerateOptions
}

// Operation is a validated, immutable invocation.
type Operation struct {
	method           Method
	selector         Selector
	digest           string
	format           Format
	interactive      bool
	assumeYes        bool
	allowDNSAltNames bool
	sections         map[Section]bool
	generate         ca.GenerateOptions
}

// New validates method and opts and returns the operation.
func New(method string, selector Selector, opts Options) (*Operation, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	return NewFor(m, selector, opts)
}

// NewFor is New for an already-resolved method.
func NewFor(method Method, selector Selector, opts Options) (*Operation, error) {
	if method < 0 || int(method) >= len(methodNames) {
		return nil, fmt.Errorf("%w: invalid method %s to apply", ca.ErrInvalidOperation, method)
	}
	digest, err := ca.NormalizeDigest(opts.Digest)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	sections := make(map[Section]bool)
	output := opts.Output
	if len(output) == 0 {
		for _, s := range DefaultSections {
			sections[s] = true
		}
	}
	for _, name := range output {
		s := Section(name)
		if !knownSections[s] {
			return nil, fmt.Errorf("%w: invalid output section %q (expected attrs, exts, fingerprint or base)", ca.ErrInvalidOperation, name)
		}
		sections[s] = true
	}

	return &Operation{
		method:           method,
		selector:         selector,
		digest:           digest,
		format:           format,
		interactive:      opts.Interactive,
		assumeYes:        opts.AssumeYes,
		allowDNSAltNames: opts.AllowDNSAltNames,
		sections:         sections,
		generate:         cloneGenerateOptions(opts.Generate),
	}, nil
}

func (o *Operation) Method() Method          { return o.method }
func (o *Operation) Selector() Selector      { return o.selector }
func (o *Operation) Digest() string          { return o.digest }
func (o *Operation) Format() Format          { return o.format }
func (o *Operation) Interactive() bool       { return o.interactive }
func (o *Operation) AssumeYes() bool         { return o.assumeYes }
func (o *Operation) AllowDNSAltNames() bool  { return o.allowDNSAltNames }
func (o *Operation) Shows(s Section) bool    { return o.sections[s] }

// Sections returns the enabled output sections, sorted.
func (o *Operation) Sections() []Section {
	return slices.Sorted(maps.Keys(o.sections))
}

// GenerateOptions returns a copy of the options passed to Service.Generate.
func (o *Operation) GenerateOptions() ca.GenerateOptions {
	return cloneGenerateOptions(o.generate)
}

func cloneGenerateOptions(g ca.GenerateOptions) ca.GenerateOptions {
	return ca.GenerateOptions{
		DNSAltNames:       slices.Clone(g.DNSAltNames),
		Attributes:        maps.Clone(g.Attributes),
		ExtensionRequests: maps.Clone(g.ExtensionRequests),
	}
}
