package config

import (
	"fmt"

	"goalconnect/core"
)

// LoadXPTable reads an XP table from a JSON or YAML file. An empty path
// returns the built-in table.
func LoadXPTable(path string) (*core.XPTable, error) {
	if path == "" {
		return core.DefaultXPTable(), nil
	}
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	var spec core.XPSpec
	if err := decode(path, data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse xp table %s: %w", path, err)
	}
	table, err := spec.Table()
	if err != nil {
		return nil, fmt.Errorf("invalid xp table %s: %w", path, err)
	}
	return table, nil
}
