package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultCategories is served when no override file is present.
var DefaultCategories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Bills & Utilities",
	"Healthcare",
	"Travel",
	"Education",
	"Business",
	"Other",
}

// CategoryDocument is the serialized form of the category list.
type CategoryDocument struct {
	Categories []string `json:"categories"`
}

// LoadCategoryDocument returns the contents of path verbatim when the file
// exists, otherwise the default list encoded as JSON.
func LoadCategoryDocument(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read categories file: %w", err)
		}
	}

	data, err := json.MarshalIndent(CategoryDocument{Categories: DefaultCategories}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode default categories: %w", err)
	}
	return data, nil
}
