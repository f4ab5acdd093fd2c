// SPDX-License-Identifier: MIT

package registry

import (
	"fmt"
	"os"
	"strings"
)

// tsvHeader matches the column layout of the sheet metadata file produced
// alongside downloaded maps.
var tsvHeader = []string{"name", "url", "coordinates", "published_date", "grid_bb"}

// AppendTSV appends records to a tab-separated metadata file, writing the
// header only when the file does not exist yet.
func AppendTSV(path string, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var b strings.Builder
	if writeHeader {
		b.WriteString(strings.Join(tsvHeader, "\t"))
		b.WriteByte('\n')
	}
	for _, rec := range recs {
		// The name column carries the image file name, not the bare sheet name.
		fmt.Fprintf(&b, "%s.png\t%s\t(%g, %g, %g, %g)\t%d\t%s\n",
			rec.Name, rec.URL,
			rec.MinLon, rec.MinLat, rec.MaxLon, rec.MaxLat,
			rec.PublishedDate, rec.Box)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append metadata: %w", err)
	}
	return nil
}
