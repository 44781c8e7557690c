package consumer

// IsBinary reports whether content looks binary: a NUL byte within the first 512 bytes.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)

	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
