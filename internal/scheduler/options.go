package scheduler

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Options holds scheduler options as cty values so they can come from an
// option string or straight from an HCL config file.
type Options struct {
	values map[string]cty.Value
}

// NewOptions returns an empty option set.
func NewOptions() Options {
	return Options{values: make(map[string]cty.Value)}
}

// Set stores val under key, replacing any previous value.
func (o *Options) Set(key string, val cty.Value) {
	if o.values == nil {
		o.values = make(map[string]cty.Value)
	}
	o.values[strings.ToLower(strings.TrimSpace(key))] = val
}

// SetInt is Set with a number value.
func (o *Options) SetInt(key string, val int64) {
	o.Set(key, cty.NumberIntVal(val))
}

// Get returns the raw value of key.
func (o Options) Get(key string) (cty.Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Len returns the number of options.
func (o Options) Len() int { return len(o.values) }

// Keys returns the option names in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Merge returns a copy of o with every option of other applied on top.
func (o Options) Merge(other Options) Options {
	out := NewOptions()
	for k, v := range o.values {
		out.values[k] = v
	}
	for k, v := range other.values {
		out.values[k] = v
	}
	return out
}

// Int returns key as an integer, or def if it is not set.
func (o Options) Int(key string, def int64) (int64, error) {
	v, ok := o.values[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	num, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("%w: option %q must be a number: %v", ErrInvalidConfig, key, err)
	}
	var out int64
	if err := gocty.FromCtyValue(num, &out); err != nil {
		return 0, fmt.Errorf("%w: option %q must be an integer: %v", ErrInvalidConfig, key, err)
	}
	return out, nil
}

// Float returns key as a float, or def if it is not set.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o.values[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	num, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("%w: option %q must be a number: %v", ErrInvalidConfig, key, err)
	}
	var out float64
	if err := gocty.FromCtyValue(num, &out); err != nil {
		return 0, fmt.Errorf("%w: option %q: %v", ErrInvalidConfig, key, err)
	}
	return out, nil
}

// Text returns key as a string, or def if it is not set.
func (o Options) Text(key string, def string) (string, error) {
	v, ok := o.values[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("%w: option %q must be a string: %v", ErrInvalidConfig, key, err)
	}
	return s.AsString(), nil
}

// checkKeys rejects any option whose name is not in allowed.
func (o Options) checkKeys(scheduler string, allowed ...string) error {
	for _, k := range o.Keys() {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("%w: scheduler %q does not accept option %q", ErrInvalidConfig, scheduler, k)
		}
	}
	return nil
}

// String renders the options as "k=v, k=v" in key order.
func (o Options) String() string {
	parts := make([]string, 0, len(o.values))
	for _, k := range o.Keys() {
		parts = append(parts, k+"="+formatValue(o.values[k]))
	}
	return strings.Join(parts, ", ")
}

func formatValue(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	if v.Type() == cty.Number {
		return v.AsBigFloat().Text('f', -1)
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return v.GoString()
	}
	return s.AsString()
}

func parseValue(s string) cty.Value {
	if f, ok := new(big.Float).SetString(s); ok {
		return cty.NumberVal(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return cty.True
	case "false":
		return cty.False
	}
	return cty.StringVal(s)
}

// ParseSpec splits a scheduler spec of the form "name" or
// "name(key=value, key=value)" into the name and its options. Options may be
// separated by commas or semicolons.
func ParseSpec(spec string) (string, Options, error) {
	opts := NewOptions()
	spec = strings.TrimSpace(spec)
	open := strings.IndexByte(spec, '(')
	if open < 0 {
		if strings.ContainsAny(spec, ")=,;") {
			return "", opts, fmt.Errorf("%w: malformed scheduler spec %q", ErrInvalidConfig, spec)
		}
		return strings.ToLower(spec), opts, nil
	}
	if !strings.HasSuffix(spec, ")") {
		return "", opts, fmt.Errorf("%w: scheduler spec %q is missing a closing parenthesis", ErrInvalidConfig, spec)
	}
	name := strings.ToLower(strings.TrimSpace(spec[:open]))
	if name == "" {
		return "", opts, fmt.Errorf("%w: scheduler spec %q has no name", ErrInvalidConfig, spec)
	}
	body := spec[open+1 : len(spec)-1]
	fields := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ';' })
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key, val, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return "", opts, fmt.Errorf("%w: scheduler option %q is not key=value", ErrInvalidConfig, f)
		}
		opts.Set(key, parseValue(strings.TrimSpace(val)))
	}
	return name, opts, nil
}

// FormatSpec is the inverse of ParseSpec.
func FormatSpec(name string, opts Options) string {
	if opts.Len() == 0 {
		return name
	}
	return name + "(" + opts.String() + ")"
}
