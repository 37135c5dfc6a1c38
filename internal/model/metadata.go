package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// sidecarFile holds class names shipped next to an artifact, e.g. best.json
// for best.onnx. Classes may be a list indexed by class id or an object keyed
// by the id.
type sidecarFile struct {
	Classes json.RawMessage `json:"classes"`
}

// SidecarPath returns the metadata file consulted for artifactPath.
func SidecarPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".json"
}

// readSidecar returns (nil, nil) when no sidecar exists.
func readSidecar(artifactPath string) (map[int]string, error) {
	metaFile, err := os.ReadFile(SidecarPath(artifactPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata")
	}

	var sidecar sidecarFile
	if err := json.Unmarshal(metaFile, &sidecar); err != nil {
		return nil, errors.Wrap(err, "failed to parse metadata")
	}

	var list []string
	if err := json.Unmarshal(sidecar.Classes, &list); err == nil {
		classes := make(map[int]string, len(list))
		for i, name := range list {
			classes[i] = name
		}
		return classes, nil
	}

	var keyed map[string]string
	if err := json.Unmarshal(sidecar.Classes, &keyed); err != nil {
		return nil, errors.Wrap(err, "metadata classes must be a list or an id-keyed object")
	}
	classes := make(map[int]string, len(keyed))
	for k, name := range keyed {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.Wrapf(err, "class id %q", k)
		}
		classes[id] = name
	}
	return classes, nil
}

var namesEntry = regexp.MustCompile(`(\d+)\s*:\s*('(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*")`)

// ParseNames reads the "names" custom metadata the YOLO exporter writes,
// a Python dict literal such as {0: 'guitar', 1: "player's hand"}.
func ParseNames(raw string) (map[int]string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return nil, errors.Errorf("names metadata is not a dict: %q", raw)
	}

	classes := make(map[int]string)
	for _, m := range namesEntry.FindAllStringSubmatch(raw, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(err, "class id %q", m[1])
		}
		quoted := m[2]
		name := quoted[1 : len(quoted)-1]
		name = strings.ReplaceAll(name, `\`+quoted[:1], quoted[:1])
		name = strings.ReplaceAll(name, `\\`, `\`)
		classes[id] = name
	}
	return classes, nil
}
