// Package archive reads and writes .mbook files: gzip-compressed tar streams
// whose single root entry is the book title.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mbook/internal/manifest"
	"mbook/internal/util"
)

const Ext = ".mbook"

// Pack writes srcDir, recursively, into a gzip tar at dst. Entries are rooted
// at the base name of srcDir.
func Pack(srcDir, dst string) (err error) {
	srcDir = filepath.Clean(srcDir)
	root := filepath.Base(srcDir)

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if walkErr != nil {
		return fmt.Errorf("pack %s: %w", srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish gzip: %w", err)
	}
	return nil
}

// Unpack expands the archive at src into destDir. Entries that would land
// outside destDir are rejected.
func Unpack(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return extract(f, destDir)
}

func extract(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	base, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target, err := entryPath(base, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr); err != nil {
				return err
			}
		}
	}
}

func entryPath(base, name string) (string, error) {
	target := filepath.Join(base, filepath.FromSlash(name))
	if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

func writeEntry(r io.Reader, target string, hdr *tar.Header) error {
	if err := util.EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", hdr.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", hdr.Name, err)
	}
	_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	return nil
}

// Package builds <base(workDir)>.mbook in scratchDir, moves it into destDir,
// expands it there next to the archive and removes workDir. It returns the
// final archive path.
func Package(workDir, scratchDir, destDir string) (string, error) {
	name := filepath.Base(filepath.Clean(workDir)) + Ext
	if err := util.EnsureDir(scratchDir); err != nil {
		return "", err
	}
	staged := filepath.Join(scratchDir, name)
	if err := Pack(workDir, staged); err != nil {
		return "", err
	}
	if err := util.EnsureDir(destDir); err != nil {
		return "", err
	}
	final := filepath.Join(destDir, name)
	if err := util.MoveFile(staged, final); err != nil {
		return "", err
	}
	if err := Unpack(final, destDir); err != nil {
		return "", err
	}
	if err := os.RemoveAll(workDir); err != nil {
		return "", fmt.Errorf("remove working dir: %w", err)
	}
	return final, nil
}

// ReadManifest returns the index.json stored under the archive's root entry.
func ReadManifest(src string) (manifest.Manifest, error) {
	f, err := os.Open(src)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return manifest.Manifest{}, fmt.Errorf("%s has no %s", src, manifest.FileName)
		}
		if err != nil {
			return manifest.Manifest{}, fmt.Errorf("read tar: %w", err)
		}
		parts := strings.Split(strings.TrimSuffix(hdr.Name, "/"), "/")
		if len(parts) == 2 && parts[1] == manifest.FileName && hdr.Typeflag == tar.TypeReg {
			return manifest.Decode(tr)
		}
	}
}

// List returns the slash-separated names of the regular files in the archive.
func List(src string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	var out []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			out = append(out, hdr.Name)
		}
	}
}
