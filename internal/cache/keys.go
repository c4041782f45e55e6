package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const keySep = ":"

// PrefixRefs namespaces stored ref listings
const PrefixRefs = "refs"

// MenuKey is the menu cache key of a repository at a ref
func MenuKey(repo, ref string) string {
	return repo + keySep + ref
}

// DocKey is the document cache key of a slug
func DocKey(repo, ref, slug string) string {
	return repo + keySep + ref + keySep + slug
}

// ImageKey is the image cache key of a slug
func ImageKey(repo, ref, slug string) string {
	return DocKey(repo, ref, slug)
}

// RefsKey is the persistent key of a repository's ref listing
func RefsKey(repo string) string {
	return PrefixRefs + keySep + repo
}

// SplitKey reverses MenuKey and DocKey. Slugs may themselves contain the
// separator; repos and refs may not.
func SplitKey(key string) (repo, ref, slug string) {
	parts := strings.SplitN(key, keySep, 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], "", ""
	}
}

// StorageKey hashes a logical key into a fixed-length persistent key
func StorageKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
