// Package web holds the dashboard served by the monitor.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// DevEnv names the environment variable that makes the monitor serve the
// dashboard from the source tree, so edits show up without a rebuild.
const DevEnv = "HYPERCUBE_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// GetAssets returns the file system holding the dashboard.
func GetAssets() http.FileSystem {
	if dir, ok := sourceDir(); ok {
		fmt.Fprintf(os.Stderr, "Serving the monitor dashboard from %s\n", dir)
		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}

func sourceDir() (string, bool) {
	dev, err := strconv.ParseBool(os.Getenv(DevEnv))
	if err != nil || !dev {
		return "", false
	}

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot locate the dashboard sources")
	}

	return filepath.Join(filepath.Dir(file), "dist"), true
}
