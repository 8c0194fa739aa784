package collection

import "strings"

const masterSuffix = "master"

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// masterName is the hash holding every entity of the collection.
func masterName(root string) string {
	return root + ":" + masterSuffix
}

// indexKey is the hash of a unique index, or the registry set of a lookup index.
func indexKey(root, index string) string {
	return root + ":" + normalizeName(index)
}

// lookupSetKey is the set holding the entries of one indexed value.
func lookupSetKey(prefix, value string) string {
	return prefix + "[" + value + "]"
}
