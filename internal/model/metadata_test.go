package model

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParseNames(t *testing.T) {
	c := qt.New(t)

	testCases := []struct {
		raw      string
		expected map[int]string
	}{
		{
			raw:      "{0: 'guitar', 1: 'piano', 2: 'violin'}",
			expected: map[int]string{0: "guitar", 1: "piano", 2: "violin"},
		},
		{
			raw:      `{0: "player's hand", 10: 'drum kit'}`,
			expected: map[int]string{0: "player's hand", 10: "drum kit"},
		},
		{
			raw:      "{}",
			expected: map[int]string{},
		},
	}

	for _, tc := range testCases {
		classes, err := ParseNames(tc.raw)
		c.Assert(err, qt.IsNil)
		c.Assert(classes, qt.DeepEquals, tc.expected)
	}

	_, err := ParseNames("['guitar', 'piano']")
	c.Assert(err, qt.IsNotNil)
}

func TestSidecarPath(t *testing.T) {
	c := qt.New(t)
	c.Assert(SidecarPath("runs/detect/x/weights/best.onnx"), qt.Equals, "runs/detect/x/weights/best.json")
	c.Assert(SidecarPath("model"), qt.Equals, "model.json")
}

func TestReadSidecar(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	artifact := filepath.Join(dir, "best.onnx")

	classes, err := readSidecar(artifact)
	c.Assert(err, qt.IsNil)
	c.Assert(classes, qt.IsNil)

	c.Assert(os.WriteFile(SidecarPath(artifact), []byte(`{"classes": ["guitar", "piano"]}`), 0o644), qt.IsNil)
	classes, err = readSidecar(artifact)
	c.Assert(err, qt.IsNil)
	c.Assert(classes, qt.DeepEquals, map[int]string{0: "guitar", 1: "piano"})

	c.Assert(os.WriteFile(SidecarPath(artifact), []byte(`{"classes": {"3": "cello"}}`), 0o644), qt.IsNil)
	classes, err = readSidecar(artifact)
	c.Assert(err, qt.IsNil)
	c.Assert(classes, qt.DeepEquals, map[int]string{3: "cello"})

	c.Assert(os.WriteFile(SidecarPath(artifact), []byte(`{"classes": 7}`), 0o644), qt.IsNil)
	_, err = readSidecar(artifact)
	c.Assert(err, qt.IsNotNil)
}
