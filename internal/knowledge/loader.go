package knowledge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overlay holds tables read from a YAML file. A nil table leaves the
// corresponding built-in table in place.
type Overlay struct {
	FollowUps Table `yaml:"followUps"`
	Facts     Table `yaml:"facts"`
}

// LoadFile reads replacement tables from a YAML document of the form
//
//	followUps:
//	  - keyword: headache
//	    text: Do you have any other symptoms?
//	facts:
//	  - keyword: headache
//	    text: Drink water and rest.
func LoadFile(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse knowledge file %s: %w", path, err)
	}
	if err := validate("followUps", o.FollowUps); err != nil {
		return nil, fmt.Errorf("knowledge file %s: %w", path, err)
	}
	if err := validate("facts", o.Facts); err != nil {
		return nil, fmt.Errorf("knowledge file %s: %w", path, err)
	}
	return &o, nil
}

func validate(name string, t Table) error {
	for i, e := range t {
		if strings.TrimSpace(e.Keyword) == "" {
			return fmt.Errorf("%s[%d]: keyword is required", name, i)
		}
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%s[%d]: text is required", name, i)
		}
	}
	return nil
}
