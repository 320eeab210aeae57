// Command hfsdav serves a read-only HFS+ volume image over WebDAV, the
// idiomatic Go substitute spec.md §6 names for a FUSE mount: any WebDAV
// client can browse and read the volume without a kernel driver.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/macfs/hfsplus/hfsfs"
	"github.com/macfs/hfsplus/internal/device"
	"github.com/macfs/hfsplus/internal/volume"
	"github.com/macfs/hfsplus/internal/webdavfs"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <device> <addr>\n", os.Args[0])
}

func main() {
	if len(os.Args) != 3 {
		usage()
		os.Exit(2)
	}
	devicePath, addr := os.Args[1], os.Args[2]

	dev, err := device.Open(devicePath)
	if err != nil {
		fatal(err)
	}
	defer dev.Close()

	vol, err := volume.Open(dev)
	if err != nil {
		fatal(err)
	}
	defer vol.Close()

	name, err := vol.Name()
	if err != nil {
		name = devicePath
	}

	handler := &webdavfs.Handler{
		FS: hfsfs.New(vol),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				slog.Error("hfsdav", "method", r.Method, "path", r.URL.Path, "err", err)
				return
			}
			slog.Info("hfsdav", "method", r.Method, "path", r.URL.Path)
		},
	}

	slog.Info("hfsdav serving", "volume", name, "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	slog.Error("hfsdav", "err", err)
	os.Exit(1)
}
