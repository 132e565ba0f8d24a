// Package path implements absolute/relative path resolution for the virtual
// file system's namespace. Paths are plain Go strings here: unlike the
// process table or page tables, there is no fixed-width on-stack buffer
// requirement once the kernel heap is available, so resolution builds an
// ordinary string rather than writing into a caller-supplied byte array.
package path

import "strings"

// MaxLength is the length at which open/setcwd reject a path as too long,
// so the longest accepted path is MaxLength-1 bytes (spec: "path too
// long (>= 255)").
const MaxLength = 255

const Separator = "/"

// IsAbsolute reports whether p begins with a separator.
func IsAbsolute(p string) bool {
	return strings.HasPrefix(p, Separator)
}

// Concat joins a and b with exactly one separator between them, regardless
// of whether either already carries one:
//
//	Concat("a/b", "c")  == "a/b/c"
//	Concat("a/b/", "/c") == "a/b/c"
func Concat(a, b string) string {
	a = strings.TrimSuffix(a, Separator)
	b = strings.TrimPrefix(b, Separator)
	if a == "" {
		return Separator + b
	}
	return a + Separator + b
}

// Resolve returns an absolute path for rel, interpreted relative to base
// when rel is not itself absolute. base is assumed to already be absolute.
func Resolve(base, rel string) string {
	if IsAbsolute(rel) {
		return Clean(rel)
	}
	return Clean(Concat(base, rel))
}

// Clean collapses "." and ".." components and repeated separators, the way
// a VFS path resolver must before comparing directory entries. It never
// escapes above the root: a leading ".." at the top is dropped.
func Clean(p string) string {
	abs := IsAbsolute(p)
	parts := strings.Split(p, Separator)
	stack := make([]string, 0, len(parts))

	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else if !abs {
				stack = append(stack, part)
			}
		default:
			stack = append(stack, part)
		}
	}

	joined := strings.Join(stack, Separator)
	if abs {
		return Separator + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}
