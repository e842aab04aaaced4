package reconcile

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

var ErrInvalidMappings = errors.New("invalid mappings")

//go:embed mappings.json5
var defaultMappingsFile []byte

// Mappings are the hand-maintained corrections applied to order lines.
// NameToCode resolves names missing from the category reference;
// CodeCorrections folds retired or duplicate product codes into the current
// one and is applied once.
type Mappings struct {
	Version         string         `json:"version"`
	NameToCode      map[string]int `json:"name_to_code"`
	CodeCorrections map[int]int    `json:"-"`
}

// mappingsFile is the on-disk shape; JSON object keys are always strings.
type mappingsFile struct {
	Version         string            `json:"version"`
	NameToCode      map[string]int    `json:"name_to_code"`
	CodeCorrections map[string]string `json:"code_corrections"`
}

// DefaultMappings returns the mappings shipped with the binary.
func DefaultMappings() (*Mappings, error) {
	var file mappingsFile
	if err := json5.Unmarshal(defaultMappingsFile, &file); err != nil {
		return nil, fmt.Errorf("failed to parse built-in mappings: %w", err)
	}
	return file.mappings()
}

// LoadMappings reads name (for example mappings.json5) and merges
// name.local.json5 over it when present. An empty name yields the built-in
// mappings.
func LoadMappings(name string) (*Mappings, error) {
	if name == "" {
		return DefaultMappings()
	}

	file, err := readMappingsFile(name)
	if err != nil {
		return nil, err
	}
	return file.mappings()
}

func readMappingsFile(name string) (mappingsFile, error) {
	var out mappingsFile

	data, err := os.ReadFile(name)
	if err != nil {
		return out, fmt.Errorf("failed to read mappings: %w", err)
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	local := localName(name)
	data, err = os.ReadFile(local)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("failed to read local mappings: %w", err)
	}

	var override mappingsFile
	if err := json5.Unmarshal(data, &override); err != nil {
		return out, fmt.Errorf("failed to parse %s: %w", local, err)
	}
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return out, fmt.Errorf("failed to merge %s: %w", local, err)
	}
	slog.Info("merging mappings with local overrides", "local", local)

	return out, nil
}

// localName turns dir/mappings.json5 into dir/mappings.local.json5.
func localName(name string) string {
	dir, base := filepath.Split(name)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".local"+ext)
}

func (f mappingsFile) mappings() (*Mappings, error) {
	m := &Mappings{
		Version:         f.Version,
		NameToCode:      f.NameToCode,
		CodeCorrections: make(map[int]int, len(f.CodeCorrections)),
	}
	if m.NameToCode == nil {
		m.NameToCode = map[string]int{}
	}

	for from, to := range f.CodeCorrections {
		fromCode, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("%w: correction key %q is not a code", ErrInvalidMappings, from)
		}
		toCode, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("%w: correction of %d to %q is not a code", ErrInvalidMappings, fromCode, to)
		}
		m.CodeCorrections[fromCode] = toCode
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate rejects correction chains and self-corrections, which would make
// the single-pass rewrite depend on how often it runs.
func (m *Mappings) Validate() error {
	var chained []string
	for from, to := range m.CodeCorrections {
		if from == to {
			chained = append(chained, fmt.Sprintf("%d->%d", from, to))
			continue
		}
		if next, ok := m.CodeCorrections[to]; ok {
			chained = append(chained, fmt.Sprintf("%d->%d->%d", from, to, next))
		}
	}
	for name, code := range m.NameToCode {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty product name mapped to %d", ErrInvalidMappings, code)
		}
	}

	if len(chained) > 0 {
		sort.Strings(chained)
		return fmt.Errorf("%w: chained code corrections %s", ErrInvalidMappings, strings.Join(chained, ", "))
	}
	return nil
}

// Correct returns the canonical code for code.
func (m *Mappings) Correct(code int) int {
	if to, ok := m.CodeCorrections[code]; ok {
		return to
	}
	return code
}
