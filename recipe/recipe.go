// Package recipe reads and writes winding recipes. A recipe is a G-code
// file whose first line is a comment carrying a description and a hash
// of the file, plus the hash of the recipe it was edited from.
package recipe

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// HashLen is the length of a hex encoded recipe hash.
const HashLen = sha256.Size * 2

// Recipe is a parsed recipe file.
type Recipe struct {
	Description string
	Hash        string
	Parent      string
	Lines       []string
}

func isHash(s string) bool {
	if len(s) != HashLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// parseHeader splits a header comment into its description and hashes. ok
// is false if the line is not a header.
func parseHeader(line string) (desc, hash, parent string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "(") || !strings.HasSuffix(line, ")") {
		return "", "", "", false
	}
	fields := strings.Fields(line[1 : len(line)-1])
	n := len(fields)
	switch {
	case n >= 2 && isHash(fields[n-1]) && isHash(fields[n-2]):
		hash, parent = fields[n-2], fields[n-1]
		fields = fields[:n-2]
	case n >= 1 && isHash(fields[n-1]):
		hash = fields[n-1]
		fields = fields[:n-1]
	}
	return strings.Join(fields, " "), hash, parent, true
}

// Parse reads a recipe. A file without a header gets an empty
// description and no hash.
func Parse(data []byte) *Recipe {
	text := strings.Replace(string(data), "\r\n", "\n", -1)
	text = strings.TrimRight(text, "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}

	r := &Recipe{}
	if len(lines) > 0 {
		if desc, hash, parent, ok := parseHeader(lines[0]); ok {
			r.Description, r.Hash, r.Parent = desc, hash, parent
			lines = lines[1:]
		}
	}
	r.Lines = lines
	return r
}

// ComputeHash hashes the description and body. The header line is not
// part of the hash.
func (r *Recipe) ComputeHash() string {
	h := sha256.New()
	h.Write([]byte(r.Description))
	h.Write([]byte{'\n'})
	for _, l := range r.Lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsValid reports whether the stored hash matches the body.
func (r *Recipe) IsValid() bool { return r.Hash == r.ComputeHash() }

// Rehash replaces a stale hash, keeping the old one as the parent. It
// reports whether anything changed.
func (r *Recipe) Rehash() bool {
	hash := r.ComputeHash()
	if hash == r.Hash {
		return false
	}
	if r.Hash != "" {
		r.Parent = r.Hash
	}
	r.Hash = hash
	return true
}

// Header is the first line of the file.
func (r *Recipe) Header() string {
	parts := []string{"("}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	parts = append(parts, r.Hash)
	if r.Parent != "" {
		parts = append(parts, r.Parent)
	}
	parts = append(parts, ")")
	return strings.Join(parts, " ")
}

// Marshal writes the recipe with its header.
func (r *Recipe) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(r.Header())
	buf.WriteByte('\n')
	for _, l := range r.Lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// New builds a recipe and hashes it.
func New(description string, lines []string) *Recipe {
	r := &Recipe{Description: description, Lines: lines}
	r.Hash = r.ComputeHash()
	return r
}

// Load reads a recipe file. If its hash is stale the file is rewritten
// with the new hash. When archive is set, a copy named after the hash is
// kept there.
func Load(path, archive string) (r *Recipe, rewritten bool, err error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, false, errors.Wrap(err, "read recipe")
	}
	r = Parse(data)
	if r.Rehash() {
		if err = ioutil.WriteFile(path, r.Marshal(), 0644); err != nil {
			return nil, false, errors.Wrap(err, "rewrite recipe")
		}
		rewritten = true
	}
	if archive != "" {
		if err = r.Archive(archive); err != nil {
			return nil, rewritten, err
		}
	}
	return r, rewritten, nil
}

// Save writes the recipe to path.
func (r *Recipe) Save(path string) error {
	return errors.Wrap(ioutil.WriteFile(path, r.Marshal(), 0644), "write recipe")
}

// Archive stores a copy as <hash>.gc in dir unless one exists.
func (r *Recipe) Archive(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create archive")
	}
	path := filepath.Join(dir, r.Hash+".gc")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return errors.Wrap(ioutil.WriteFile(path, r.Marshal(), 0644), "archive recipe")
}
