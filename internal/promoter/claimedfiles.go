package promoter

// ClaimedFileSet contains the paths of files that are changed by pull
// requests that were merged, or attempted to be merged, in the current run.
// It only grows, files are never unclaimed.
type ClaimedFileSet struct {
	files map[string]struct{}
}

func NewClaimedFileSet() *ClaimedFileSet {
	return &ClaimedFileSet{files: map[string]struct{}{}}
}

// Claim adds paths to the set.
func (s *ClaimedFileSet) Claim(paths ...string) {
	for _, p := range paths {
		s.files[p] = struct{}{}
	}
}

// Overlap returns the elements of paths that are claimed, in the order they
// appear in paths.
func (s *ClaimedFileSet) Overlap(paths []string) []string {
	var result []string

	for _, p := range paths {
		if _, exists := s.files[p]; exists {
			result = append(result, p)
		}
	}

	return result
}

func (s *ClaimedFileSet) Len() int {
	return len(s.files)
}
