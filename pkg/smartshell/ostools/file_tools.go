// Package ostools – file_tools.go implements navigation and file
// management relative to the shell's working directory.
package ostools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

const (
	categoryFiles = "files"

	// maxReadBytes caps read_file output.
	maxReadBytes = 100 * 1024

	// maxListEntries caps list_directory output.
	maxListEntries = 500
)

func (tb *Toolbox) fileTools() []tools.Binding {
	pathParam := func(desc string) tools.Param {
		return tools.Param{Name: "path", Type: tools.TypeString, Required: true, Description: desc}
	}
	srcDst := []tools.Param{
		{Name: "source", Type: tools.TypeString, Required: true, Description: "Source path"},
		{Name: "destination", Type: tools.TypeString, Required: true, Description: "Destination path or directory"},
	}

	return []tools.Binding{
		{
			Spec: tools.Spec{
				Name:        "current_directory",
				Description: "Show the current working directory.",
				Category:    categoryFiles,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				return tools.HeaderWorkingDirectory + tb.Cwd(), nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "change_directory",
				Description: "Change the current working directory. Relative paths and ~ are accepted.",
				Category:    categoryFiles,
				Params:      []tools.Param{pathParam("Directory to enter")},
			},
			Handler: tb.changeDirectory,
		},
		{
			Spec: tools.Spec{
				Name:        "list_directory",
				Description: "List the files and folders in a directory (default: current directory).",
				Category:    categoryFiles,
				Params: []tools.Param{
					{Name: "path", Type: tools.TypeString, Description: "Directory to list"},
					{Name: "show_hidden", Type: tools.TypeBoolean, Description: "Include dot files"},
				},
			},
			Handler: tb.listDirectory,
		},
		{
			Spec: tools.Spec{
				Name:        "create_folder",
				Description: "Create a folder, including missing parents.",
				Category:    categoryFiles,
				Params:      []tools.Param{pathParam("Folder to create")},
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				p, err := requireString(args, "path")
				if err != nil {
					return "", err
				}
				p = tb.resolvePath(p)
				if err := os.MkdirAll(p, 0o755); err != nil {
					return "", err
				}
				return "Created " + p, nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "read_file",
				Description: "Read a text file. Use offset and limit (in lines) for large files.",
				Category:    categoryFiles,
				Params: []tools.Param{
					pathParam("File to read"),
					{Name: "offset", Type: tools.TypeInteger, Description: "First line to return, 1-based"},
					{Name: "limit", Type: tools.TypeInteger, Description: "Maximum number of lines"},
				},
			},
			Handler: tb.readFile,
		},
		{
			Spec: tools.Spec{
				Name:        "write_file",
				Description: "Write text to a file, replacing it unless append is true. Parent folders are created.",
				Category:    categoryFiles,
				Dangerous:   true,
				Params: []tools.Param{
					pathParam("File to write"),
					{Name: "content", Type: tools.TypeString, Required: true, Description: "Text to write"},
					{Name: "append", Type: tools.TypeBoolean, Description: "Append instead of overwrite"},
				},
			},
			Handler: tb.writeFile,
		},
		{
			Spec: tools.Spec{
				Name:        "copy_file",
				Description: "Copy a file. If the destination is a directory the file keeps its name.",
				Category:    categoryFiles,
				Params:      srcDst,
			},
			Handler: tb.copyFile,
		},
		{
			Spec: tools.Spec{
				Name:        "move_file",
				Description: "Move a file or folder.",
				Category:    categoryFiles,
				Dangerous:   true,
				Params:      srcDst,
			},
			Handler: tb.moveFile,
		},
		{
			Spec: tools.Spec{
				Name:        "rename_file",
				Description: "Rename a file or folder in place.",
				Category:    categoryFiles,
				Params: []tools.Param{
					pathParam("File or folder to rename"),
					{Name: "new_name", Type: tools.TypeString, Required: true, Description: "New name, without directory"},
				},
			},
			Handler: tb.renameFile,
		},
		{
			Spec: tools.Spec{
				Name:        "delete_file",
				Description: "Delete a file, or a folder with everything inside it.",
				Category:    categoryFiles,
				Dangerous:   true,
				Params:      []tools.Param{pathParam("File or folder to delete")},
			},
			Handler: tb.deleteFile,
		},
		{
			Spec: tools.Spec{
				Name:        "split_file",
				Description: "Split a large file into numbered parts of a given size in megabytes.",
				Category:    categoryFiles,
				Params: []tools.Param{
					pathParam("File to split"),
					{Name: "part_size_mb", Type: tools.TypeInteger, Required: true, Description: "Size of each part in MB"},
				},
			},
			Handler: tb.splitFile,
		},
		{
			Spec: tools.Spec{
				Name:        "open_file",
				Description: "Open a file or folder with its default application.",
				Category:    categoryFiles,
				Params:      []tools.Param{pathParam("File or folder to open")},
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				p, err := requireString(args, "path")
				if err != nil {
					return "", err
				}
				p = tb.resolvePath(p)
				if _, err := os.Stat(p); err != nil {
					return "", err
				}
				if err := openDefault(ctx, p); err != nil {
					return "", err
				}
				return "Opened " + p, nil
			},
		},
	}
}

func (tb *Toolbox) changeDirectory(ctx context.Context, args tools.Args) (string, error) {
	p, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	p = tb.resolvePath(p)
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", p)
	}
	tb.setCwd(p)
	return tools.HeaderWorkingDirectory + p, nil
}

func (tb *Toolbox) listDirectory(ctx context.Context, args tools.Args) (string, error) {
	dir := tb.resolvePath(args.String("path", "."))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	hidden := args.Bool("show_hidden", false)

	// Folders first, then files, each alphabetically.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s ---\n", tools.HeaderDirectoryListing, dir)
	shown, folders, files := 0, 0, 0
	for _, e := range entries {
		if !hidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			folders++
		} else {
			files++
		}
		if shown >= maxListEntries {
			continue
		}
		shown++
		if e.IsDir() {
			fmt.Fprintf(&b, "[DIR]  %s\n", e.Name())
			continue
		}
		size := ""
		if info, err := e.Info(); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(&b, "       %s (%s)\n", e.Name(), size)
	}
	if folders+files == 0 {
		b.WriteString("(empty)\n")
	}
	if folders+files > shown {
		fmt.Fprintf(&b, "... %d more not shown\n", folders+files-shown)
	}
	fmt.Fprintf(&b, "%d folders, %d files", folders, files)
	return b.String(), nil
}

func (tb *Toolbox) readFile(ctx context.Context, args tools.Args) (string, error) {
	p, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	p = tb.resolvePath(p)
	offset, err := args.Int("offset", 0)
	if err != nil {
		return "", err
	}
	limit, err := args.Int("limit", 0)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	content := string(data)

	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if offset > 0 {
			start = min(offset-1, len(lines))
		}
		end := len(lines)
		if limit > 0 {
			end = min(start+limit, len(lines))
		}
		content = strings.Join(lines[start:end], "\n")
	}

	if len(content) > maxReadBytes {
		content = tools.Truncate(content, maxReadBytes) + "\n... [truncated, use offset and limit to read more]"
	}
	return fmt.Sprintf("%s%s ---\n%s", tools.HeaderFileContents, p, content), nil
}

func (tb *Toolbox) writeFile(ctx context.Context, args tools.Args) (string, error) {
	p, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	p = tb.resolvePath(p)
	content := args.String("content", "")
	appendMode := args.Bool("append", false)

	if _, err := os.Stat(p); err == nil && !appendMode {
		if !tb.confirm(ctx, "Overwrite %s?", p) {
			return cancelledByUser, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(p, flag, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %s to %s", humanize.Bytes(uint64(len(content))), p), nil
}

// destinationPath returns dst, or dst/base(src) when dst is a directory.
func destinationPath(src, dst string) string {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		return filepath.Join(dst, filepath.Base(src))
	}
	return dst
}

func (tb *Toolbox) copyFile(ctx context.Context, args tools.Args) (string, error) {
	src, err := requireString(args, "source")
	if err != nil {
		return "", err
	}
	dst, err := requireString(args, "destination")
	if err != nil {
		return "", err
	}
	src = tb.resolvePath(src)
	dst = destinationPath(src, tb.resolvePath(dst))

	if _, err := os.Stat(dst); err == nil {
		if !tb.confirm(ctx, "%s already exists. Overwrite?", dst) {
			return cancelledByUser, nil
		}
	}
	n, err := copyContents(src, dst)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Copied %s to %s (%s)", src, dst, humanize.Bytes(uint64(n))), nil
}

func copyContents(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", src)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (tb *Toolbox) moveFile(ctx context.Context, args tools.Args) (string, error) {
	src, err := requireString(args, "source")
	if err != nil {
		return "", err
	}
	dst, err := requireString(args, "destination")
	if err != nil {
		return "", err
	}
	src = tb.resolvePath(src)
	dst = destinationPath(src, tb.resolvePath(dst))

	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	if !tb.confirm(ctx, "Move %s to %s?", src, dst) {
		return cancelledByUser, nil
	}
	if err := os.Rename(src, dst); err != nil {
		// Rename fails across volumes; fall back to copy and delete for files.
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) {
			return "", err
		}
		if _, cerr := copyContents(src, dst); cerr != nil {
			return "", err
		}
		if rerr := os.Remove(src); rerr != nil {
			return "", rerr
		}
	}
	return fmt.Sprintf("Moved %s to %s", src, dst), nil
}

func (tb *Toolbox) renameFile(ctx context.Context, args tools.Args) (string, error) {
	p, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	name, err := requireString(args, "new_name")
	if err != nil {
		return "", err
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("new_name must not contain a path separator; use move_file instead")
	}
	p = tb.resolvePath(p)
	dst := filepath.Join(filepath.Dir(p), name)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("%s already exists", dst)
	}
	if err := os.Rename(p, dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("Renamed %s to %s", p, name), nil
}

func (tb *Toolbox) deleteFile(ctx context.Context, args tools.Args) (string, error) {
	p, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	p = tb.resolvePath(p)
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if p == filepath.Dir(p) {
		return "", fmt.Errorf("refusing to delete the root directory")
	}

	what := "file"
	if info.IsDir() {
		what = "folder and everything inside it"
	}
	if !tb.confirm(ctx, "Permanently delete %s %s?", what, p) {
		return cancelledByUser, nil
	}
	if err := os.RemoveAll(p); err != nil {
		return "", err
	}
	return "Deleted " + p, nil
}

func (tb *Toolbox) splitFile(ctx context.Context, args tools.Args) (string, error) {
	p, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	sizeMB, err := args.Int("part_size_mb", 0)
	if err != nil {
		return "", err
	}
	if sizeMB <= 0 {
		return "", fmt.Errorf("part_size_mb must be positive")
	}
	p = tb.resolvePath(p)
	parts, err := splitInto(ctx, p, int64(sizeMB)*1024*1024)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Split %s into %d parts:\n%s", p, len(parts), strings.Join(parts, "\n")), nil
}

// splitInto writes path.001, path.002, ... each at most partSize bytes.
func splitInto(ctx context.Context, path string, partSize int64) ([]string, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var parts []string
	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return parts, err
		}
		name := fmt.Sprintf("%s.%03d", path, i)
		out, err := os.Create(name)
		if err != nil {
			return parts, err
		}
		n, err := io.CopyN(out, in, partSize)
		out.Close()
		if n == 0 {
			os.Remove(name)
			break
		}
		parts = append(parts, name)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return parts, err
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return parts, nil
}
