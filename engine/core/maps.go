package core

// CopyMaps merges maps left to right into a new map; later keys win.
func CopyMaps(maps ...map[string]any) map[string]any {
	size := 0
	for _, m := range maps {
		size += len(m)
	}
	out := make(map[string]any, size)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
