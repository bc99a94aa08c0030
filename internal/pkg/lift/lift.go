// Package lift implements the canonical in-memory model of a lift manifest
// (spec.md §3) and its two parse modes: permissive (boot-pack input, where
// hash/size/type/base/jump may be omitted and are elaborated) and strict
// (a scie tip, where every field is mandatory). Both modes canonicalize to
// the same Manifest shape so every other component only ever sees the
// fully-specified form.
package lift

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/a-scie/jump/internal/pkg/jumperr"
)

// decodeStrict decodes data into v, rejecting any JSON object key v's type
// doesn't declare (spec.md §4.2/§7: unknown keys anywhere under `scie.*`
// are a ConfigError, not silently-ignored metadata).
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// FileType enumerates the recognized payload kinds (spec.md §3).
type FileType string

const (
	TypeBlob      FileType = "blob"
	TypeDirectory FileType = "directory"
	TypeZip       FileType = "zip"
	TypeTar       FileType = "tar"
	TypeTarGz     FileType = "tar.gz"
	TypeTarBz2    FileType = "tar.bz2"
	TypeTarXz     FileType = "tar.xz"
	TypeTarZst    FileType = "tar.zst"
)

var extToType = map[string]FileType{
	".zip":     TypeZip,
	".tar":     TypeTar,
	".tar.gz":  TypeTarGz,
	".tgz":     TypeTarGz,
	".tar.bz2": TypeTarBz2,
	".tbz2":    TypeTarBz2,
	".tar.xz":  TypeTarXz,
	".txz":     TypeTarXz,
	".tar.zst": TypeTarZst,
	".tzst":    TypeTarZst,
}

// InferType guesses a FileType from a file name's extension, falling back
// to TypeBlob when nothing matches (spec.md §3: "type ... inferred from
// name's extension when absent").
func InferType(name string) FileType {
	for ext, t := range extToType {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			return t
		}
	}
	return TypeBlob
}

// IsArchive reports whether t requires extraction rather than being staged
// as a single file.
func (t FileType) IsArchive() bool {
	switch t {
	case TypeZip, TypeTar, TypeTarGz, TypeTarBz2, TypeTarXz, TypeTarZst, TypeDirectory:
		return true
	default:
		return false
	}
}

// FileEntry is one entry in lift.files (spec.md §3). Hash/Size/Type are
// mandatory in strict mode and optional (elaborated by the permissive
// parser) in boot-pack input. Source names a binding that produces the
// file's bytes on demand instead of it occupying space in the scie's
// payload region.
type FileEntry struct {
	Name   string
	Key    string // aliases Name inside placeholders; may be empty
	Type   FileType
	Hash   string // lowercase hex sha256
	Size   uint64
	Source string // binding name, or "" if this file is embedded
}

// Sourced reports whether this file's bytes come from a binding rather than
// the scie's own payload region.
func (f FileEntry) Sourced() bool { return f.Source != "" }

// LookupKey returns the name placeholders should match against: the Key if
// present, else the Name (spec.md §3: "key aliases name inside placeholders").
func (f FileEntry) LookupKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

type fileEntryJSON struct {
	Name   string `json:"name"`
	Key    string `json:"key,omitempty"`
	Type   string `json:"type,omitempty"`
	Hash   string `json:"hash,omitempty"`
	Size   *uint64 `json:"size,omitempty"`
	Source string `json:"source,omitempty"`
}

func (f FileEntry) MarshalJSON() ([]byte, error) {
	j := fileEntryJSON{
		Name:   f.Name,
		Key:    f.Key,
		Type:   string(f.Type),
		Hash:   f.Hash,
		Source: f.Source,
	}
	size := f.Size
	j.Size = &size
	return json.Marshal(j)
}

func (f *FileEntry) UnmarshalJSON(data []byte) error {
	var j fileEntryJSON
	if err := decodeStrict(data, &j); err != nil {
		return jumperr.Wrap(jumperr.Config, "", err, "decoding file entry")
	}
	f.Name = j.Name
	f.Key = j.Key
	f.Type = FileType(j.Type)
	f.Hash = j.Hash
	f.Source = j.Source
	if j.Size != nil {
		f.Size = *j.Size
	}
	return nil
}

// EnvAction describes what a command env entry does to the ambient
// environment (spec.md §3 env-semantics table).
type EnvAction int

const (
	// SetIfAbsent sets NAME only if it is not already present in the
	// ambient environment ("NAME": "value").
	SetIfAbsent EnvAction = iota
	// SetAlways always sets NAME, overriding ambient ("=NAME": "value").
	SetAlways
	// Remove deletes NAME from the environment if present ("NAME": null).
	Remove
)

// EnvEntry is one key of a command's env map, after splitting the leading
// "=" (SetAlways) sigil and recognizing a null value as Remove.
type EnvEntry struct {
	Name   string
	Action EnvAction
	Value  string // meaningless when Action == Remove
}

// IsRegex reports whether Name is a non-trivial regular expression that
// should be matched against every ambient variable name rather than taken
// as a literal single variable (spec.md §3: "If NAME is a valid regex,
// apply the action to every ambient var matching it").
func (e EnvEntry) IsRegex() bool {
	if _, err := regexp.Compile("^(?:" + e.Name + ")$"); err != nil {
		return false
	}
	// A plain identifier is technically a valid (trivial) regex; only
	// treat it as a pattern when it contains characters a literal env var
	// name cannot: shell/POSIX env names are [A-Za-z_][A-Za-z0-9_]*.
	for _, r := range e.Name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return true
		}
	}
	return false
}

// Command is one boot.commands or boot.bindings entry (spec.md §3).
type Command struct {
	Description string
	Exe         string
	Args        []string
	Env         []EnvEntry // order-preserving; map order in JSON is not guaranteed so we store a slice
}

type commandJSON struct {
	Description string            `json:"description,omitempty"`
	Exe         string            `json:"exe"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]*string `json:"env,omitempty"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	envMap := make(map[string]*string, len(c.Env))
	for _, e := range c.Env {
		name := e.Name
		if e.Action == SetAlways {
			name = "=" + name
		}
		if e.Action == Remove {
			envMap[name] = nil
			continue
		}
		v := e.Value
		envMap[name] = &v
	}
	return json.Marshal(commandJSON{
		Description: c.Description,
		Exe:         c.Exe,
		Args:        c.Args,
		Env:         envMap,
	})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var j commandJSON
	if err := decodeStrict(data, &j); err != nil {
		return jumperr.Wrap(jumperr.Config, "", err, "decoding command")
	}
	c.Description = j.Description
	c.Exe = j.Exe
	c.Args = j.Args

	// Deterministic order matters for env resolution (spec.md §3: "applying
	// the command's env map entries in order"); JSON object key order is
	// not preserved by encoding/json, so we fall back to lexical order,
	// which is the best a standard decoder can promise and matches the
	// canonical re-serialization boot-pack always performs.
	names := make([]string, 0, len(j.Env))
	for name := range j.Env {
		names = append(names, name)
	}
	sort.Strings(names)

	c.Env = make([]EnvEntry, 0, len(names))
	for _, raw := range names {
		name := raw
		action := SetIfAbsent
		if len(name) > 0 && name[0] == '=' {
			action = SetAlways
			name = name[1:]
		}
		v := j.Env[raw]
		entry := EnvEntry{Name: name, Action: action}
		if v == nil {
			entry.Action = Remove
		} else {
			entry.Value = *v
		}
		c.Env = append(c.Env, entry)
	}
	return nil
}

// Lift is the scie.lift object (spec.md §3).
type Lift struct {
	Name        string
	Description string
	Base        string
	LoadDotenv  bool
	Files       []FileEntry
	Commands    map[string]Command // key "" is the default
	Bindings    map[string]Command
}

// JumpInfo is the scie.jump object (spec.md §3).
type JumpInfo struct {
	Size    uint64
	Version string
}

// Manifest is the full canonical `{"scie": {...}}` document plus any opaque
// top-level sibling keys, preserved verbatim (spec.md §3: "any other
// top-level keys are opaque user metadata and must round-trip untouched").
type Manifest struct {
	Jump  JumpInfo
	Lift  Lift
	Extra map[string]json.RawMessage // everything outside "scie"
}

type scieJSON struct {
	Jump *jumpInfoJSON `json:"jump,omitempty"`
	Lift liftJSON      `json:"lift"`
}

type jumpInfoJSON struct {
	Size    *uint64 `json:"size,omitempty"`
	Version string  `json:"version,omitempty"`
}

type liftJSON struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Base        string              `json:"base,omitempty"`
	LoadDotenv  bool                `json:"load_dotenv,omitempty"`
	Files       []FileEntry         `json:"files,omitempty"`
	Boot        bootJSON            `json:"boot"`
}

type bootJSON struct {
	Commands map[string]Command `json:"commands,omitempty"`
	Bindings map[string]Command `json:"bindings,omitempty"`
}

// DefaultBase is the documented default for scie.lift.base (spec.md §3):
// "{scie.user.cache_dir}/nce". It is expressed here as the literal
// placeholder text so permissive parsing can fill it in unexpanded;
// cmd/scie-jump's expandBasePlaceholder resolves it to a directory.
const DefaultBase = "{scie.user.cache_dir}/nce"

// topKeyScie is the only top-level key this parser understands; any other
// top-level key is opaque user metadata to preserve untouched.
const topKeyScie = "scie"

// Parse decodes raw into a Manifest. If strict is true (a scie tip),
// scie.jump.size, scie.jump.version and each file entry's hash and type
// must be present; a file entry's size is not checked for presence, and an
// omitted size reads as 0. Otherwise missing hash/size/jump are left
// zero-valued for the caller (internal/pkg/bootpack) to elaborate, and a
// missing type is inferred from the file name.
func Parse(raw []byte, strict bool) (*Manifest, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, jumperr.Wrap(jumperr.Format, "the manifest is not valid JSON", err, "decoding lift manifest")
	}

	scieRaw, ok := top[topKeyScie]
	if !ok {
		return nil, jumperr.New(jumperr.Format, "", "manifest has no top-level %q key", topKeyScie)
	}
	delete(top, topKeyScie)

	var sj scieJSON
	if err := decodeStrict(scieRaw, &sj); err != nil {
		return nil, jumperr.Wrap(jumperr.Config, "", err, "decoding scie object")
	}

	m := &Manifest{Extra: top}

	if sj.Jump != nil {
		m.Jump.Version = sj.Jump.Version
		if sj.Jump.Size != nil {
			m.Jump.Size = *sj.Jump.Size
		}
	}
	if strict {
		if sj.Jump == nil || sj.Jump.Size == nil {
			return nil, jumperr.New(jumperr.Format, "inspect the tail with SCIE=inspect", "scie.jump.size is required in a scie tip")
		}
		if sj.Jump.Version == "" {
			return nil, jumperr.New(jumperr.Format, "", "scie.jump.version is required in a scie tip")
		}
	}

	m.Lift = Lift{
		Name:        sj.Lift.Name,
		Description: sj.Lift.Description,
		Base:        sj.Lift.Base,
		LoadDotenv:  sj.Lift.LoadDotenv,
		Files:       sj.Lift.Files,
		Commands:    sj.Lift.Boot.Commands,
		Bindings:    sj.Lift.Boot.Bindings,
	}
	if m.Lift.Base == "" {
		m.Lift.Base = DefaultBase
	}
	if m.Lift.Commands == nil {
		m.Lift.Commands = map[string]Command{}
	}
	if m.Lift.Bindings == nil {
		m.Lift.Bindings = map[string]Command{}
	}

	if strict {
		for i, f := range m.Lift.Files {
			if f.Type == "" || f.Hash == "" {
				return nil, jumperr.New(jumperr.Format, "", "file entry %q is missing hash/type in a scie tip", f.Name)
			}
			_ = i
		}
	} else {
		for i, f := range m.Lift.Files {
			if f.Type == "" {
				m.Lift.Files[i].Type = InferType(f.Name)
			}
		}
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the invariants of spec.md §3 that are independent of
// strict/permissive mode: unique names/keys, and no key colliding with a
// name.
func Validate(m *Manifest) error {
	names := map[string]bool{}
	keys := map[string]bool{}
	for _, f := range m.Lift.Files {
		if names[f.Name] {
			return jumperr.New(jumperr.Config, "", "duplicate file name %q", f.Name)
		}
		names[f.Name] = true
	}
	for _, f := range m.Lift.Files {
		if f.Key == "" {
			continue
		}
		if keys[f.Key] {
			return jumperr.New(jumperr.Config, "", "duplicate file key %q", f.Key)
		}
		if names[f.Key] {
			return jumperr.New(jumperr.Config, "", "file key %q collides with a file name", f.Key)
		}
		keys[f.Key] = true
	}
	if _, hasDefault := m.Lift.Commands[""]; !hasDefault && len(m.Lift.Commands) == 0 {
		return jumperr.New(jumperr.Config, "", "lift has no commands at all")
	}
	return nil
}

// Marshal renders m back to canonical JSON: the "scie" object and any
// opaque top-level keys, in alphabetical key order, single-line when
// singleLine is true (boot-pack writes single-line form by default so
// `tail -1` recovers it, per spec.md §4.9).
func Marshal(m *Manifest, singleLine bool) ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range m.Extra {
		out[k] = v
	}

	jumpSize := m.Jump.Size
	sj := scieJSON{
		Jump: &jumpInfoJSON{Size: &jumpSize, Version: m.Jump.Version},
		Lift: liftJSON{
			Name:        m.Lift.Name,
			Description: m.Lift.Description,
			Base:        m.Lift.Base,
			LoadDotenv:  m.Lift.LoadDotenv,
			Files:       m.Lift.Files,
			Boot: bootJSON{
				Commands: m.Lift.Commands,
				Bindings: m.Lift.Bindings,
			},
		},
	}
	scieBytes, err := json.Marshal(sj)
	if err != nil {
		return nil, err
	}
	out[topKeyScie] = scieBytes

	if singleLine {
		return json.Marshal(out)
	}
	return json.MarshalIndent(out, "", "  ")
}

// ErrUnknownCommand is an error value for an undeclared command name;
// Lift.Command itself reports a missing name through its bool result.
var ErrUnknownCommand = fmt.Errorf("unknown command")

// Command looks up a named command (empty string for the default).
func (l Lift) Command(name string) (Command, bool) {
	c, ok := l.Commands[name]
	return c, ok
}
