// Package mmap maps snapshot files read-only into memory.
//
//	m, err := mmap.Open("fields/title_vector.snap")
//	if err != nil { ... }
//	defer m.Close()
//	m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix uses mmap(2) and madvise(2). Windows uses CreateFileMapping and
// MapViewOfFile; Advise is a no-op there.
//
// Bytes must not be used after Close.
package mmap
