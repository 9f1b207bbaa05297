package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// formatFor picks json or yaml from an explicit flag or the file extension.
func formatFor(path, flag string) (string, error) {
	if flag != "" {
		f := strings.ToLower(flag)
		if f != "json" && f != "yaml" {
			return "", fmt.Errorf("unsupported format %q (use json or yaml)", flag)
		}
		return f, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "json", nil
	}
}

// readDocument reads a scenario document from path, or stdin for "-".
func readDocument(path, format string) (scene.Document, error) {
	var r io.Reader
	if path == "" || path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return decodeDocument(r, format)
}

// decodeDocument parses a document. YAML is normalised through JSON so that
// numbers and nested maps have the same shapes as a JSON decode.
func decodeDocument(r io.Reader, format string) (scene.Document, error) {
	var doc scene.Document
	switch format {
	case "yaml":
		var raw any
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding YAML: %w", err)
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("normalising YAML: %w", err)
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("document must be a mapping: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding JSON: %w", err)
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("document is empty")
	}
	return doc, nil
}

// writeDocument encodes doc to w.
func writeDocument(w io.Writer, doc scene.Document, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		return nil
	}
}

// countNodes loads doc into a scratch hierarchy and reports its size.
func countNodes(doc scene.Document) (profiles, folders, entities int, err error) {
	h := scene.New()
	if err := h.FromDocument(doc); err != nil {
		return 0, 0, 0, err
	}
	return len(h.ProfileIDs()), len(h.FolderIDs()), len(h.EntityIDs()), nil
}
