// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resave

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ReportExt is the extension of report definition files.
const ReportExt = ".rpt"

// FindReports walks dir recursively and returns every file with the .rpt
// extension (any case) in walk order. Any walk error aborts the scan.
func FindReports(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ReportExt) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s for reports: %w", dir, err)
	}
	return paths, nil
}

// DestPath returns where src is saved: directly under destDir, with the
// source base name and a lower-case .rpt extension.
func DestPath(destDir, src string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(destDir, base+ReportExt)
}
