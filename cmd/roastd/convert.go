package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"roast_monitor/internal/export"
	"roast_monitor/internal/importer"
	"roast_monitor/internal/service"
)

// runConvert imports one roast file and writes it in the format named by
// the output extension.
func runConvert(f ConvertFlags) (service.ImportSummary, error) {
	format, err := export.FormatForExtension(filepath.Ext(f.Out))
	if err != nil {
		return service.ImportSummary{}, err
	}
	data, err := os.ReadFile(f.In)
	if err != nil {
		return service.ImportSummary{}, err
	}
	res, err := importer.Parse(filepath.Base(f.In), data)
	if err != nil {
		return service.ImportSummary{}, fmt.Errorf("import %s: %w", f.In, err)
	}

	date := time.Now()
	if st, err := os.Stat(f.In); err == nil {
		date = st.ModTime()
	}
	out, err := export.Encode(format, export.Roast{Date: date, Samples: res.Samples, Events: res.Events})
	if err != nil {
		return service.ImportSummary{}, fmt.Errorf("export %s: %w", f.Out, err)
	}
	if err := os.WriteFile(f.Out, out.Data, 0o644); err != nil {
		return service.ImportSummary{}, err
	}
	return service.ImportSummary{
		Filename: filepath.Base(f.In),
		Samples:  len(res.Samples),
		Events:   len(res.Events),
		Skipped:  res.Skipped,
	}, nil
}
