package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

func TestFormatFor(t *testing.T) {
	cases := []struct {
		path, flag, want string
	}{
		{"drill.json", "", "json"},
		{"drill.yaml", "", "yaml"},
		{"drill.YML", "", "yaml"},
		{"-", "", "json"},
		{"drill.json", "yaml", "yaml"},
	}
	for _, tc := range cases {
		got, err := formatFor(tc.path, tc.flag)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%s", tc.path, tc.flag)
	}

	_, err := formatFor("drill.json", "xml")
	assert.Error(t, err)
}

func sampleDocument(t *testing.T) scene.Document {
	t.Helper()
	h := scene.New()
	p, err := h.AddProfileCategory("Platform")
	require.NoError(t, err)
	f, err := h.AddFolder(p.ID(), "Blue", true)
	require.NoError(t, err)
	e, err := h.AddEntity(f.ID(), "Jet1", false)
	require.NoError(t, err)
	require.NoError(t, h.AddComponent(e.ID(), scene.ComponentRigidbody))
	require.NoError(t, h.UpdateComponent(e.ID(), scene.ComponentRigidbody, scene.Document{"mass": 12000}))
	return h.ToDocument()
}

func TestDocument_RoundTripBothFormats(t *testing.T) {
	doc := sampleDocument(t)
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeDocument(&buf, doc, format))

			got, err := decodeDocument(&buf, format)
			require.NoError(t, err)

			profiles, folders, entities, err := countNodes(got)
			require.NoError(t, err)
			assert.Equal(t, 1, profiles)
			assert.Equal(t, 1, folders)
			assert.Equal(t, 1, entities)

			h := scene.New()
			require.NoError(t, h.FromDocument(got))
			assert.Equal(t, doc, h.ToDocument())
		})
	}
}

func TestDecodeDocument_Errors(t *testing.T) {
	_, err := decodeDocument(strings.NewReader("null"), "json")
	assert.Error(t, err)

	_, err = decodeDocument(strings.NewReader("- a\n- b\n"), "yaml")
	assert.Error(t, err, "a sequence is not a document")

	_, err = decodeDocument(strings.NewReader("{"), "json")
	assert.Error(t, err)
}
