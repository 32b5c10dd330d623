package engines

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ModuleFiles returns every .wasm file below modulesDir.
func ModuleFiles(modulesDir string) ([]string, error) {
	var modulesPath []string

	err := filepath.Walk(modulesDir, func(path string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".wasm") {
			modulesPath = append(modulesPath, path)
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get WASM modules for pre-cache from %s directory", modulesDir)
	}

	return modulesPath, nil
}
