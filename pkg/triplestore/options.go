package triplestore

import (
	"fmt"
	"strings"
)

// Options is an ordered mapping of connection option keys to values. Keys
// keep the position of their first Set; setting an existing key overwrites
// its value in place.
//
// Options are built for a single open attempt and released afterwards. A
// released Options is empty and must not be reused.
type Options struct {
	keys     []string
	values   map[string]string
	released bool
}

// NewOptions returns an empty Options.
func NewOptions() *Options {
	return &Options{values: make(map[string]string)}
}

// Set stores value under key. It panics on released Options.
func (o *Options) Set(key, value string) {
	if o.released {
		panic("triplestore: Set on released Options")
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value stored under key.
func (o *Options) Get(key string) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Options) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Bool reports whether key holds a true value ("yes", "true", "on" or "1").
func (o *Options) Bool(key string) bool {
	v, ok := o.Get(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}

// Keys returns the keys in insertion order.
func (o *Options) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Map returns a copy of the options as a plain map.
func (o *Options) Map() map[string]string {
	out := make(map[string]string, o.Len())
	if o == nil {
		return out
	}
	for _, k := range o.keys {
		out[k] = o.values[k]
	}
	return out
}

// Clone returns an independent copy. Cloning released Options yields empty,
// usable Options.
func (o *Options) Clone() *Options {
	c := NewOptions()
	if o == nil {
		return c
	}
	for _, k := range o.keys {
		c.Set(k, o.values[k])
	}
	return c
}

// Release drops every entry and marks the Options as spent. It is safe to
// call more than once.
func (o *Options) Release() {
	if o == nil {
		return
	}
	o.keys = nil
	o.values = map[string]string{}
	o.released = true
}

// Released reports whether Release has been called.
func (o *Options) Released() bool {
	return o != nil && o.released
}

// String renders the options back into the connection string syntax.
// Values are always quoted.
func (o *Options) String() string {
	if o == nil {
		return ""
	}
	var b strings.Builder
	for i, k := range o.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString("='")
		for _, r := range o.values[k] {
			if r == '\'' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('\'')
	}
	return b.String()
}

// SyntaxError reports a malformed connection string.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("connection string: %s at offset %d", e.Msg, e.Offset)
}

// ParseOptions parses a connection string of the form
// key='value',key='value'. An empty string yields empty Options.
func ParseOptions(raw string) (*Options, error) {
	opts := NewOptions()
	p := optionParser{src: raw}

	for {
		p.skipSpace()
		if p.eof() {
			return opts, nil
		}

		key, err := p.key()
		if err != nil {
			return nil, err
		}
		value, err := p.value()
		if err != nil {
			return nil, err
		}
		opts.Set(key, value)

		p.skipSpace()
		if p.eof() {
			return opts, nil
		}
		if p.src[p.pos] != ',' {
			return nil, p.errorf("expected ',' after value of %q", key)
		}
		p.pos++
	}
}

type optionParser struct {
	src string
	pos int
}

func (p *optionParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *optionParser) skipSpace() {
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *optionParser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

// key reads up to and including the '='.
func (p *optionParser) key() (string, error) {
	start := p.pos
	for !p.eof() {
		switch p.src[p.pos] {
		case '=':
			key := strings.TrimSpace(p.src[start:p.pos])
			if key == "" {
				return "", p.errorf("empty key")
			}
			p.pos++
			return key, nil
		case ',', '\'':
			return "", p.errorf("missing '=' after %q", strings.TrimSpace(p.src[start:p.pos]))
		}
		p.pos++
	}
	return "", p.errorf("missing '=' after %q", strings.TrimSpace(p.src[start:]))
}

func (p *optionParser) value() (string, error) {
	p.skipSpace()
	if p.eof() || p.src[p.pos] != '\'' {
		start := p.pos
		for !p.eof() && p.src[p.pos] != ',' {
			p.pos++
		}
		return strings.TrimSpace(p.src[start:p.pos]), nil
	}

	open := p.pos
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 < len(p.src) {
				p.pos++
				c = p.src[p.pos]
			}
		case '\'':
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
	p.pos = open
	return "", p.errorf("unterminated quoted value")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
