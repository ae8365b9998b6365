package domain

// Fragment is a reusable block of prompt instructions mixed into a
// template's prompt during resolution.
type Fragment struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description,omitempty"`
	Instructions string   `yaml:"instructions"`
	Tags         []string `yaml:"tags,omitempty"`
	Variables    []string `yaml:"variables,omitempty"`
}

// FragmentDocument is the on-disk shape: the fragment body wrapped under a
// top-level "fragment" key, which is how the three document kinds are told
// apart.
type FragmentDocument struct {
	Fragment Fragment `yaml:"fragment"`
}
