package cluster

import (
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// score computes the 32-bit rendezvous-hashing weight for (endpoint,
// key): the first 4 bytes of blake2b-256(endpoint || key), read
// big-endian. spec.md §4.4
// leaves the exact hash function as an open question ("any
// deterministic 32-bit hash suffices, provided every node uses the
// same one") — blake2b is used here rather than a raw checksum like
// fnv or crc32 because it is already part of the dependency surface
// this project draws on and gives a well-distributed, collision-
// resistant score without pulling in a new library just for this.
func score(endpoint string, key []byte) uint32 {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(endpoint))
	h.Write(key)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// Rank returns the replica ranking for key over topology: a
// permutation of [0, N) ordered by ascending score, with ties broken
// by ascending node id so every node computes the identical
// permutation (spec.md §4.4, §8 "every node produces the same
// permutation").
func Rank(topology *Topology, key []byte) []int {
	n := topology.Len()
	type scored struct {
		id    int
		score uint32
	}
	ranked := make([]scored, n)
	for i := 0; i < n; i++ {
		ranked[i] = scored{id: i, score: score(topology.Endpoint(i), key)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	ids := make([]int, n)
	for i, s := range ranked {
		ids[i] = s.id
	}
	return ids
}
