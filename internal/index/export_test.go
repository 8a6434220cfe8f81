package index

import "io/fs"

// SetWriteFile swaps the index writer until the returned func is called.
func SetWriteFile(f func(path string, data []byte, perm fs.FileMode) error) func() {
	prev := writeFile
	writeFile = f
	return func() { writeFile = prev }
}
