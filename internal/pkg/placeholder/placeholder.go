// Package placeholder implements the `{…}` substitution language of
// spec.md §4.3: a small lexer that tokenizes literal runs and `{expr}`
// spans, and a recursive evaluator with a bounded depth and a visited-set
// cycle guard, following the design note in spec.md §9 ("implement as a
// small expression lexer ... cheaper and clearer than string-level regex
// substitution").
package placeholder

import (
	"strings"

	"github.com/a-scie/jump/internal/pkg/jumperr"
)

// maxDepth bounds recursive expansion (spec.md §4.3: "recursive with a
// fixed maximum depth and cycle-guard").
const maxDepth = 16

// Resolver supplies the values a placeholder expression can resolve
// against. Each method returns (value, found, error); an error is fatal
// (e.g. a cyclic binding dependency), found=false means "no such name".
type Resolver interface {
	// File resolves {name} / {scie.files.name} to an absolute path, and
	// {scie.files.name:hash} to the file's sha256 hex digest.
	File(name string) (path string, ok bool, err error)
	FileHash(name string) (hash string, ok bool, err error)
	// Binding resolves {scie.bindings.name} to its working directory, and
	// {scie.bindings.name:key} to a key written to SCIE_BINDING_ENV.
	BindingDir(name string) (path string, ok bool, err error)
	BindingValue(name, key string) (value string, ok bool, err error)
	// Env resolves {scie.env.VAR}.
	Env(name string) (value string, ok bool)
	Base() string
	LiftPath() (string, error)
	Argv0() string
	PlatformArch() string
	PlatformOS() string
	UserCacheDir(fallback string) (string, error)
}

// Expand substitutes every `{expr}` span in s using r, recursing into
// expanded values up to maxDepth. A placeholder beginning with "scie." that
// matches no known rule, or one that resolves to nothing, is fatal
// (spec.md §4.3).
func Expand(s string, r Resolver) (string, error) {
	return expand(s, r, 0, map[string]bool{})
}

func expand(s string, r Resolver, depth int, visiting map[string]bool) (string, error) {
	if depth > maxDepth {
		return "", jumperr.New(jumperr.Config, "", "placeholder expansion exceeded max depth %d (possible cycle) in %q", maxDepth, s)
	}

	var out strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '{' {
			out.WriteByte(s[i])
			i++
			continue
		}
		end := matchingBrace(s, i)
		if end < 0 {
			return "", jumperr.New(jumperr.Config, "", "unterminated placeholder in %q", s)
		}
		expr := s[i+1 : end]
		if visiting[expr] {
			return "", jumperr.New(jumperr.Config, "", "cyclic placeholder reference: %q", expr)
		}
		visiting[expr] = true
		val, err := eval(expr, r)
		if err != nil {
			return "", err
		}
		// Recursively expand the result so that a default value such as
		// {scie.env.VAR=another-{placeholder}} itself gets expanded.
		val, err = expand(val, r, depth+1, visiting)
		delete(visiting, expr)
		if err != nil {
			return "", err
		}
		out.WriteString(val)
		i = end + 1
	}
	return out.String(), nil
}

// matchingBrace returns the index of the '}' matching the '{' at s[open],
// honoring nested braces so defaults like {scie.env.V={nested}} lex
// correctly.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func eval(expr string, r Resolver) (string, error) {
	switch {
	case expr == "scie.base":
		return r.Base(), nil
	case expr == "scie.lift":
		return r.LiftPath()
	case expr == "scie.argv0":
		return r.Argv0(), nil
	case expr == "scie.platform":
		return r.PlatformOS() + "-" + r.PlatformArch(), nil
	case expr == "scie.platform.arch":
		return r.PlatformArch(), nil
	case expr == "scie.platform.os":
		return r.PlatformOS(), nil
	case strings.HasPrefix(expr, "scie.user.cache_dir"):
		fallback := ""
		if eq := strings.IndexByte(expr, '='); eq >= 0 {
			fallback = expr[eq+1:]
		}
		return r.UserCacheDir(fallback)
	case strings.HasPrefix(expr, "scie.env."):
		return evalEnv(expr[len("scie.env."):], r)
	case strings.HasPrefix(expr, "scie.bindings."):
		return evalBinding(expr[len("scie.bindings."):], r)
	case strings.HasPrefix(expr, "scie.files."):
		return evalFile(expr[len("scie.files."):], r)
	case strings.HasPrefix(expr, "scie."):
		return "", jumperr.New(jumperr.Config, "", "unrecognized scie placeholder: {%s}", expr)
	default:
		return evalFile(expr, r)
	}
}

func evalEnv(rest string, r Resolver) (string, error) {
	eq := strings.IndexByte(rest, '=')
	name := rest
	hasDefault := false
	def := ""
	if eq >= 0 {
		name = rest[:eq]
		def = rest[eq+1:]
		hasDefault = true
	}
	if v, ok := r.Env(name); ok {
		return v, nil
	}
	if hasDefault {
		return def, nil
	}
	return "", nil
}

func evalBinding(rest string, r Resolver) (string, error) {
	name, key, hasKey := strings.Cut(rest, ":")
	if !hasKey {
		path, ok, err := r.BindingDir(name)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", jumperr.New(jumperr.Config, "", "reference to unknown binding %q", name)
		}
		return path, nil
	}
	v, ok, err := r.BindingValue(name, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", jumperr.New(jumperr.Config, "", "binding %q did not declare output %q", name, key)
	}
	return v, nil
}

func evalFile(rest string, r Resolver) (string, error) {
	name, suffix, hasSuffix := strings.Cut(rest, ":")
	if hasSuffix && suffix == "hash" {
		h, ok, err := r.FileHash(name)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", jumperr.New(jumperr.Config, "", "reference to unknown file %q", name)
		}
		return h, nil
	}
	if hasSuffix {
		return "", jumperr.New(jumperr.Config, "", "unknown file placeholder suffix %q in {%s}", suffix, rest)
	}
	p, ok, err := r.File(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", jumperr.New(jumperr.Config, "", "reference to unknown file %q", name)
	}
	return p, nil
}

// ReferencedBindings returns the binding names any placeholder in s refers
// to, in order of appearance. The engine does not call it; it discovers
// bindings while expanding.
func ReferencedBindings(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		if s[i] != '{' {
			i++
			continue
		}
		end := matchingBrace(s, i)
		if end < 0 {
			break
		}
		expr := s[i+1 : end]
		if strings.HasPrefix(expr, "scie.bindings.") {
			rest := expr[len("scie.bindings."):]
			name, _, _ := strings.Cut(rest, ":")
			out = append(out, name)
		}
		i = end + 1
	}
	return out
}

// ReferencedFiles returns the set of file names/keys any placeholder in s
// refers to (scie.files.X, {X}, and {X:hash} forms).
func ReferencedFiles(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		if s[i] != '{' {
			i++
			continue
		}
		end := matchingBrace(s, i)
		if end < 0 {
			break
		}
		expr := s[i+1 : end]
		switch {
		case strings.HasPrefix(expr, "scie."):
			if strings.HasPrefix(expr, "scie.files.") {
				rest := expr[len("scie.files."):]
				name, _, _ := strings.Cut(rest, ":")
				out = append(out, name)
			}
		default:
			name, _, _ := strings.Cut(expr, ":")
			out = append(out, name)
		}
		i = end + 1
	}
	return out
}
