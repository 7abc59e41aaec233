package model

// PageMetadata is what the metadata phase records for one page.
type PageMetadata struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	OGTitle     string `json:"og_title,omitempty"`
	OGType      string `json:"og_type,omitempty"`
	OGImage     string `json:"og_image,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
	Lang        string `json:"lang,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
}

// DesignData is the per-page design extraction result: the raw material for
// downstream token generation.
type DesignData struct {
	URL          string   `json:"url"`
	Colors       []string `json:"colors,omitempty"`
	FontFamilies []string `json:"font_families,omitempty"`
	FontSizes    []string `json:"font_sizes,omitempty"`
	SpacingPx    []string `json:"spacing,omitempty"`
	BorderRadii  []string `json:"border_radii,omitempty"`
	Shadows      []string `json:"shadows,omitempty"`
}

// PathSet is the deduplicated, ordered set of site-relative paths the
// discovery phases produce (persisted as paths.json).
type PathSet struct {
	BaseURL string   `json:"base_url"`
	Paths   []string `json:"paths"`
}

// Contains reports whether the set already holds path.
func (ps *PathSet) Contains(path string) bool {
	for _, p := range ps.Paths {
		if p == path {
			return true
		}
	}
	return false
}

// Add appends paths not already present and returns how many were new.
func (ps *PathSet) Add(paths ...string) int {
	added := 0
	for _, p := range paths {
		if !ps.Contains(p) {
			ps.Paths = append(ps.Paths, p)
			added++
		}
	}
	return added
}
