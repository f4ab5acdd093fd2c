// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestMetadata(t *testing.T) string {
	t.Helper()
	feature := func(id int, name string, minLon, maxLon float64) string {
		return fmt.Sprintf(`{
			"type": "Feature",
			"id": "series.%d",
			"properties": {
				"IMAGE": %q,
				"IMAGEURL": "https://maps.example.com/%s",
				"WFS_TITLE": "OS One Inch, Published 1896"
			},
			"geometry": {"type": "Polygon", "coordinates": [[[%[4]f,55],[%[5]f,55],[%[5]f,56],[%[4]f,56],[%[4]f,55]]]}
		}`, id, name, name, minLon, maxLon)
	}
	doc := fmt.Sprintf(`{"type":"FeatureCollection","features":[%s,%s]}`,
		feature(101, "sheet_a", -3.0, -2.0),
		feature(102, "sheet_b", -2.0, -1.0),
	)
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o640))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newQueryCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQueryCommandListsAll(t *testing.T) {
	meta := writeTestMetadata(t)
	out, err := runCommand(t, "--metadata", meta)
	require.NoError(t, err)
	assert.Contains(t, out, "sheet_a")
	assert.Contains(t, out, "sheet_b")
	assert.Contains(t, out, "2 sheet(s)")
}

func TestQueryCommandByWFSID(t *testing.T) {
	meta := writeTestMetadata(t)
	out, err := runCommand(t, "--metadata", meta, "--wfs-ids", "102")
	require.NoError(t, err)
	assert.NotContains(t, out, "sheet_a")
	assert.Contains(t, out, "sheet_b")
}

func TestQueryCommandByPoint(t *testing.T) {
	meta := writeTestMetadata(t)
	out, err := runCommand(t, "--metadata", meta, "--point", "55.5,-2.5")
	require.NoError(t, err)
	assert.Contains(t, out, "sheet_a")
	assert.NotContains(t, out, "sheet_b")
}

func TestQueryCommandNoMatch(t *testing.T) {
	meta := writeTestMetadata(t)
	_, err := runCommand(t, "--metadata", meta, "--wfs-ids", "999")
	assert.Error(t, err)
}

func TestQueryCommandBadBounds(t *testing.T) {
	meta := writeTestMetadata(t)
	_, err := runCommand(t, "--metadata", meta, "--bounds", "1,2")
	assert.ErrorContains(t, err, "--bounds")
}

func TestQueryCommandMissingMetadata(t *testing.T) {
	_, err := runCommand(t, "--metadata", filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
