package sstable

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const filePrefix = "SSTable_"

// filenamePattern matches the fixed-width zero-padded binary counter
// spec.md §4.1 mandates so that directory listing in ascending name
// order yields oldest-first SSTable order.
var filenamePattern = regexp.MustCompile(`^SSTable_[01]{64}$`)

// PathForGeneration builds the on-disk path for the generation-th
// flush or compaction output in dir. generation is the SSTable list
// length at the moment of creation, per spec.md §4.1.
func PathForGeneration(dir string, generation uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%064b", filePrefix, generation))
}

// ListGenerations returns the SSTable file paths present in dir,
// sorted ascending by name (== oldest-first by construction).
func ListGenerations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sstable: list generations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filenamePattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// generationOf parses the counter back out of a path produced by
// PathForGeneration, used to compute the next free generation after
// loading existing tables at engine open.
func generationOf(path string) (uint64, error) {
	name := filepath.Base(path)
	if !filenamePattern.MatchString(name) {
		return 0, fmt.Errorf("sstable: not a generation filename: %s", name)
	}
	return strconv.ParseUint(name[len(filePrefix):], 2, 64)
}
