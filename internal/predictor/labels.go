package predictor

import (
	"errors"
	"fmt"
)

// Label names one model output index.
type Label struct {
	ID        string `json:"classId"`
	Name      string `json:"class"`
	Localized string `json:"class_vi"`
}

// Catalogue is ordered by model output index. The order is fixed by the
// artifact and must never be sorted or deduplicated.
type Catalogue []Label

func (c Catalogue) Validate() error {
	if len(c) == 0 {
		return errors.New("class catalogue is empty")
	}

	seen := make(map[string]int, len(c))
	for i, l := range c {
		if l.ID == "" || l.Name == "" {
			return fmt.Errorf("class %d has no identifier or name", i)
		}
		if j, ok := seen[l.ID]; ok {
			return fmt.Errorf("class %q appears at index %d and %d", l.ID, j, i)
		}
		seen[l.ID] = i
	}

	return nil
}

// LocalizedName returns the localized name, falling back to the canonical name.
func (l Label) LocalizedName() string {
	if l.Localized != "" {
		return l.Localized
	}
	return l.Name
}
