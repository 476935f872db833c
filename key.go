package tagcache

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Key names a cache entry: a template, the prefixes it belongs to and a TTL.
// A TTL <= 0 means "do not cache".
//
// Keys are values. Every method returns a new Key and never aliases the
// receiver's prefix slice.
type Key struct {
	name     string
	prefixes []string
	ttl      time.Duration
}

// NewKey builds a key template. Empty prefixes are dropped.
func NewKey(template string, ttl time.Duration, prefixes ...string) Key {
	k := Key{name: template, ttl: ttl}
	for _, p := range prefixes {
		if p != "" {
			k.prefixes = append(k.prefixes, p)
		}
	}
	return k
}

func (k Key) Name() string       { return k.name }
func (k Key) TTL() time.Duration { return k.ttl }
func (k Key) String() string     { return k.name }

// Prefixes returns a copy of the key's prefixes.
func (k Key) Prefixes() []string { return slices.Clone(k.prefixes) }

// WithTTL returns a copy of k with ttl replaced.
func (k Key) WithTTL(ttl time.Duration) Key {
	out := k.clone()
	out.ttl = ttl
	return out
}

func (k Key) clone() Key {
	return Key{name: k.name, prefixes: slices.Clone(k.prefixes), ttl: k.ttl}
}

// Resolve substitutes params into the name and every prefix.
// Params are normalized with NormalizeParam first. With no params the
// templates are returned unchanged.
func (k Key) Resolve(params ...any) (Key, error) {
	out := k.clone()
	if len(params) == 0 {
		return out, nil
	}
	args := normalizeAll(params)

	name, err := formatTemplate(k.name, args)
	if err != nil {
		return Key{}, err
	}
	out.name = name
	out.prefixes = out.prefixes[:0]
	for _, p := range k.prefixes {
		rp, err := formatTemplate(p, args)
		if err != nil {
			return Key{}, err
		}
		if rp != "" {
			out.prefixes = append(out.prefixes, rp)
		}
	}
	return out, nil
}

// ResolvePrefix applies the Resolve rules to a bare prefix template.
func ResolvePrefix(template string, params ...any) (string, error) {
	if len(params) == 0 {
		return template, nil
	}
	return formatTemplate(template, normalizeAll(params))
}

func normalizeAll(params []any) []string {
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = NormalizeParam(p)
	}
	return args
}

// formatTemplate replaces {n} with args[n]. "{{" and "}}" are literal braces.
// Args without a placeholder are ignored.
func formatTemplate(tmpl string, args []string) (string, error) {
	if !strings.ContainsAny(tmpl, "{}") {
		return tmpl, nil
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		switch c := tmpl[i]; c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder in %q", ErrKeyFormat, tmpl)
			}
			idx, err := strconv.Atoi(strings.TrimSpace(tmpl[i+1 : i+1+end]))
			if err != nil || idx < 0 {
				return "", fmt.Errorf("%w: bad placeholder %q in %q", ErrKeyFormat, tmpl[i:i+2+end], tmpl)
			}
			if idx >= len(args) {
				return "", fmt.Errorf("%w: placeholder {%d} in %q but only %d params", ErrKeyFormat, idx, tmpl, len(args))
			}
			b.WriteString(args[idx])
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: unmatched '}' in %q", ErrKeyFormat, tmpl)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// KeyFactory prepares resolved keys with the configured TTLs.
type KeyFactory struct {
	DefaultTTL time.Duration
	ShortTTL   time.Duration
}

// NewKeyFactory fills zero TTLs with DefaultCacheTime / ShortTermCacheTime.
func NewKeyFactory(defaultTTL, shortTTL time.Duration) KeyFactory {
	return KeyFactory{
		DefaultTTL: coalesce(defaultTTL, DefaultCacheTime),
		ShortTTL:   coalesce(shortTTL, ShortTermCacheTime),
	}
}

// Prepare resolves k and keeps its own TTL.
func (f KeyFactory) Prepare(k Key, params ...any) (Key, error) {
	return k.Resolve(params...)
}

func (f KeyFactory) PrepareWithTTL(k Key, ttl time.Duration, params ...any) (Key, error) {
	r, err := k.Resolve(params...)
	if err != nil {
		return Key{}, err
	}
	r.ttl = ttl
	return r, nil
}

func (f KeyFactory) PrepareDefault(k Key, params ...any) (Key, error) {
	return f.PrepareWithTTL(k, coalesce(f.DefaultTTL, DefaultCacheTime), params...)
}

func (f KeyFactory) PrepareShortTerm(k Key, params ...any) (Key, error) {
	return f.PrepareWithTTL(k, coalesce(f.ShortTTL, ShortTermCacheTime), params...)
}
