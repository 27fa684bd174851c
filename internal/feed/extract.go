package feed

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// nupkg 中只服务于 OPC 打包格式的条目，解压时跳过。
var packagingEntries = []string{"[Content_Types].xml", "_rels/", "package/"}

// ExtractPackage 把 nupkg 解压到 destDir，返回写出的文件列表。
// 任何条目试图逃逸 destDir 时整体失败。
func (f *Feed) ExtractPackage(archivePath, destDir string) ([]string, error) {
	files, err := extractArchive(archivePath, destDir)
	if err != nil {
		return nil, downloadFailure("extract", archivePath, err)
	}
	return files, nil
}

func extractArchive(archivePath, destDir string) ([]string, error) {
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	var written []string
	for _, file := range reader.File {
		if isPackagingEntry(file.Name) {
			continue
		}
		destPath := filepath.Join(absDest, filepath.FromSlash(file.Name))
		rel, err := filepath.Rel(absDest, destPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(file.Name) {
			return nil, fmt.Errorf("invalid path in archive: %s", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if file.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("symlink entries are not allowed: %s", file.Name)
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return nil, err
		}
		if err := extractFile(file, destPath); err != nil {
			return nil, fmt.Errorf("extract %s: %w", file.Name, err)
		}
		written = append(written, destPath)
	}
	return written, nil
}

func isPackagingEntry(name string) bool {
	for _, prefix := range packagingEntries {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == prefix {
			return true
		}
	}
	return false
}

func extractFile(file *zip.File, destPath string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := file.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
