// Command hfsinspect opens a read-only HFS+ volume image and prints its
// Volume Header, a single catalog record, or a file/directory's contents,
// the mount-side operations spec.md §6 names without requiring an actual
// kernel mount.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/macfs/hfsplus/hfsfs"
	"github.com/macfs/hfsplus/internal/catalog"
	"github.com/macfs/hfsplus/internal/device"
	"github.com/macfs/hfsplus/internal/volume"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  %[1]s <device>                    print the Volume Header
  %[1]s <device> stat <cnid|path>   print one catalog record
  %[1]s <device> read <path>        dump a file's data fork, or list a directory
  %[1]s -glob <pattern> <device>    dump every file whose path matches pattern
`, os.Args[0])
}

func main() {
	glob := flag.String("glob", "", "doublestar pattern matched against every file path")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	dev, err := device.Open(args[0])
	if err != nil {
		fatal(err)
	}
	defer dev.Close()

	vol, err := volume.Open(dev)
	if err != nil {
		fatal(err)
	}
	defer vol.Close()

	fsys := hfsfs.New(vol)

	switch {
	case *glob != "":
		runGlob(fsys, *glob)
	case len(args) == 1:
		printHeader(vol)
	case len(args) == 3 && args[1] == "stat":
		runStat(vol, args[2])
	case len(args) == 3 && args[1] == "read":
		runRead(fsys, args[2])
	default:
		usage()
		os.Exit(2)
	}
}

func fatal(err error) {
	slog.Error("hfsinspect", "err", err)
	os.Exit(1)
}

// fsPath adapts a user-supplied path (possibly rooted, possibly empty) to
// io/fs's relative, dot-for-root convention.
func fsPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return p
}

func printHeader(vol *volume.Volume) {
	h := vol.Header()
	name, err := vol.Name()
	if err != nil {
		name = "?"
	}
	fmt.Printf("volume name:      %s\n", name)
	fmt.Printf("signature:        %#04x\n", h.Signature)
	fmt.Printf("version:          %d\n", h.Version)
	fmt.Printf("journaled:        %v\n", h.Journaled())
	fmt.Printf("dirty:            %v\n", h.Dirty())
	fmt.Printf("case sensitive:   %v\n", vol.CaseSensitive())
	fmt.Printf("block size:       %d\n", h.BlockSize)
	fmt.Printf("total blocks:     %d\n", h.TotalBlocks)
	fmt.Printf("free blocks:      %d\n", h.FreeBlocks)
	fmt.Printf("file count:       %d\n", h.FileCount)
	fmt.Printf("folder count:     %d\n", h.FolderCount)
	fmt.Printf("next catalog id:  %d\n", h.NextCatalogID)
}

func runStat(vol *volume.Volume, arg string) {
	if cnid, err := strconv.ParseUint(arg, 10, 32); err == nil {
		cat := catalog.New(vol)
		rec, key, ferr := cat.FindByCNID(uint32(cnid))
		if ferr != nil {
			fatal(ferr)
		}
		printRecord(rec, key)
		return
	}

	fsys := hfsfs.New(vol)
	fi, err := fs.Stat(fsys, fsPath(arg))
	if err != nil {
		fatal(err)
	}
	sys := fi.Sys().(*hfsfs.Sys)
	fmt.Printf("name:      %s\n", fi.Name())
	fmt.Printf("cnid:      %d\n", sys.CNID)
	fmt.Printf("size:      %d\n", fi.Size())
	fmt.Printf("mode:      %s\n", fi.Mode())
	fmt.Printf("nlink:     %d\n", sys.Nlink)
	fmt.Printf("modified:  %s\n", fi.ModTime())
}

func printRecord(rec *catalog.Record, key volume.CatalogKey) {
	fmt.Printf("cnid:         %d\n", rec.CNID())
	fmt.Printf("parent cnid:  %d\n", key.ParentCNID)
	fmt.Printf("is dir:       %v\n", rec.IsDir())
	switch {
	case rec.Folder != nil:
		fmt.Printf("valence:      %d\n", rec.Folder.Valence)
		printPermissions(rec.Folder.Permissions)
		printDates(rec.Folder.Dates)
	case rec.File != nil:
		fmt.Printf("data size:    %d\n", rec.File.DataFork.LogicalSize)
		fmt.Printf("rsrc size:    %d\n", rec.File.ResourceFork.LogicalSize)
		fmt.Printf("file link:    %v\n", rec.File.IsFileHardlink())
		fmt.Printf("dir link:     %v\n", rec.File.IsDirHardlink())
		printPermissions(rec.File.Permissions)
		printDates(rec.File.Dates)
	}
}

func printPermissions(p catalog.Permissions) {
	fmt.Printf("owner/group:  %d/%d\n", p.OwnerID, p.GroupID)
	fmt.Printf("mode:         %#o\n", p.FileMode)
}

func printDates(d catalog.Dates) {
	fmt.Printf("created:      %s\n", time.Unix(catalog.PosixTime(d.Create), 0).UTC())
	fmt.Printf("modified:     %s\n", time.Unix(catalog.PosixTime(d.Content), 0).UTC())
}

func runRead(fsys *hfsfs.FS, arg string) {
	p := fsPath(arg)
	fi, err := fs.Stat(fsys, p)
	if err != nil {
		fatal(err)
	}
	if fi.IsDir() {
		entries, derr := fsys.ReadDir(p)
		if derr != nil {
			fatal(derr)
		}
		for _, e := range entries {
			fmt.Println(e.Name())
		}
		return
	}
	f, err := fsys.Open(p)
	if err != nil {
		fatal(err)
	}
	defer f.Close()
	if _, err := io.Copy(os.Stdout, f); err != nil {
		fatal(err)
	}
}

// runGlob dumps every regular file under fsys whose path matches pattern,
// each preceded by a "==> path <==" banner in the style of cat/tail -v.
// Matched files are read concurrently (bounded, since the device cache
// behind fsys is itself mutex-serialized) and printed in match order so
// the banners never interleave.
func runGlob(fsys *hfsfs.FS, pattern string) {
	allMatches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		fatal(err)
	}

	matches := allMatches[:0]
	for _, p := range allMatches {
		fi, err := fs.Stat(fsys, p)
		if err != nil {
			fatal(err)
		}
		if !fi.IsDir() {
			matches = append(matches, p)
		}
	}

	contents := make([][]byte, len(matches))
	var g errgroup.Group
	g.SetLimit(8)
	for i, p := range matches {
		g.Go(func() error {
			f, err := fsys.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := io.ReadAll(f)
			contents[i] = data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		fatal(err)
	}

	for i, p := range matches {
		fmt.Printf("==> %s <==\n", p)
		os.Stdout.Write(contents[i])
	}
}
